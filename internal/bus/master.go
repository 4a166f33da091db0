// internal/bus/master.go
package bus

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/tamzrod/sensor-bridge/internal/transport"
)

// Bit rate bounds accepted by the controller's bus block.
const (
	MinBitRate = 100000
	MaxBitRate = 1000000
)

// Master is the host side of the transaction sub-protocol. It encodes a
// request into one control transfer; read data comes back over the bulk-in
// channel, so retrieval is safe to interleave with control traffic.
type Master struct {
	cc   transport.ControlClient
	bulk transport.BulkReader

	// usbTimeout bounds each control exchange. Independent of the
	// bus-level timeout carried inside the request.
	usbTimeout time.Duration
}

func NewMaster(cc transport.ControlClient, bulk transport.BulkReader, usbTimeout time.Duration) *Master {
	return &Master{cc: cc, bulk: bulk, usbTimeout: usbTimeout}
}

// Configure sets the bus bit rate. Rates outside [MinBitRate, MaxBitRate]
// are clamped, matching the controller's own filter.
func (m *Master) Configure(bitRate uint32) error {
	if bitRate < MinBitRate {
		bitRate = MinBitRate
	}
	if bitRate > MaxBitRate {
		bitRate = MaxBitRate
	}

	p := make([]byte, 4)
	binary.LittleEndian.PutUint32(p, bitRate)
	_, err := m.cc.Control(transport.CmdI2CInit, transport.DirOut, 0, 0, p, m.usbTimeout)
	return err
}

// Read performs one bus read transaction: n bytes after the addressing
// preamble, collected from the bulk channel once the device has captured
// them.
func (m *Master) Read(pre Preamble, n int, busTimeout time.Duration) ([]byte, error) {
	if n <= 0 || n > MaxReadLen {
		return nil, &transport.ConfigError{Op: "bus read", Reason: fmt.Sprintf("numBytes %d out of range", n)}
	}

	req := Request{
		NumBytes:  uint32(n),
		TimeoutMS: uint32(busTimeout / time.Millisecond),
		Preamble:  pre,
	}
	payload, err := req.Encode()
	if err != nil {
		return nil, err
	}

	if _, err := m.cc.Control(transport.CmdI2CRead, transport.DirOut, 0, 0, payload, m.usbTimeout); err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	got, err := m.bulk.ReadBulk(buf, busTimeout+m.usbTimeout)
	if err != nil {
		return nil, fmt.Errorf("bus: collect read data: %w", err)
	}
	if got != n {
		return nil, fmt.Errorf("bus: collect read data: got %d of %d bytes", got, n)
	}
	return buf, nil
}

// Write performs one bus write transaction. The write data trails the
// request header in the same control payload.
func (m *Master) Write(pre Preamble, data []byte, busTimeout time.Duration) error {
	if len(data) == 0 {
		return &transport.ConfigError{Op: "bus write", Reason: "empty write data"}
	}

	req := Request{
		NumBytes:  uint32(len(data)),
		TimeoutMS: uint32(busTimeout / time.Millisecond),
		Preamble:  pre,
		WriteData: data,
	}
	payload, err := req.Encode()
	if err != nil {
		return err
	}

	_, err = m.cc.Control(transport.CmdI2CWrite, transport.DirOut, 0, 0, payload, m.usbTimeout)
	return err
}
