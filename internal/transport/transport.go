// internal/transport/transport.go
package transport

import "time"

// Command is a vendor control request code.
type Command uint8

// Vendor request codes understood by the controller firmware.
const (
	CmdReadFlash     Command = 0xB2 // flash read; address in Value/Index, length via payload size
	CmdClearErrorLog Command = 0xB3 // device-side log erase
	CmdI2CInit       Command = 0xC0 // configure bus bit rate
	CmdI2CRead       Command = 0xC1 // bus read; data returns over the bulk-in channel
	CmdI2CWrite      Command = 0xC2 // bus write; write data trails the request header
	CmdStreamStart   Command = 0xC5
	CmdStreamStop    Command = 0xC6
)

// Direction selects the data phase direction of a control exchange.
type Direction uint8

const (
	DirOut Direction = iota // host to device
	DirIn                   // device to host
)

// MaxPayload is the control endpoint's hard payload ceiling per exchange.
// Nothing in this module may issue a larger transfer.
const MaxPayload = 4096

// MaxBulkPayload is the size of the device's bulk scratch buffer. One bus
// read or one capture buffer must fit in it; the bulk channel is not
// subject to the control payload ceiling.
const MaxBulkPayload = 12288

// ControlClient performs one vendor control exchange at a time.
// Value and Index are the request's two 16-bit auxiliary fields.
// Implementations MUST serialize exchanges: the control endpoint is a
// single shared hardware resource.
//
// There is no automatic retry at this layer. A failed exchange leaves the
// buffer contents undefined; callers must not interpret them.
type ControlClient interface {
	Control(cmd Command, dir Direction, value, index uint16, buf []byte, timeout time.Duration) (int, error)
}

// BulkReader reads from the device's bulk-in channel. Bulk traffic moves
// on its own endpoint and may interleave with control exchanges.
type BulkReader interface {
	ReadBulk(buf []byte, timeout time.Duration) (int, error)
}
