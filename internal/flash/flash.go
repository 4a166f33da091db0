// internal/flash/flash.go
package flash

import (
	"fmt"
	"time"

	"github.com/tamzrod/sensor-bridge/internal/transport"
)

// Flash geometry. These values define the device address space and MUST NOT
// be configurable.
const (
	// AddrMax is the inclusive ceiling of the byte address space.
	AddrMax = 0x40000

	// MaxTransfer is the per-exchange size ceiling. Larger regions are
	// read by repeated calls; see ReadRange.
	MaxTransfer = 4096
)

// Flash reads tolerate more latency than register access.
const readTimeout = 5000 * time.Millisecond

// Log clear is a device-side erase; it completes quickly or not at all.
const clearTimeout = 2000 * time.Millisecond

// Client maps the linear flash address space onto chunked control
// exchanges. It holds no state and performs no caching.
type Client struct {
	cc transport.ControlClient
}

func New(cc transport.ControlClient) *Client {
	return &Client{cc: cc}
}

// Read performs one flash read of length bytes starting at addr.
// Both bounds are checked before any transfer is issued. The address is
// split into the exchange's two 16-bit auxiliary fields, low half first.
func (c *Client) Read(addr uint32, length int) ([]byte, error) {
	if addr > AddrMax {
		return nil, &transport.ConfigError{Op: "flash read", Reason: "address out of range"}
	}
	if length > MaxTransfer {
		return nil, &transport.ConfigError{Op: "flash read", Reason: "length exceeds per-transfer maximum"}
	}
	if length < 0 {
		return nil, &transport.ConfigError{Op: "flash read", Reason: "negative length"}
	}
	if length == 0 {
		return nil, nil
	}

	buf := make([]byte, length)
	n, err := c.cc.Control(
		transport.CmdReadFlash, transport.DirIn,
		uint16(addr&0xFFFF), uint16(addr>>16),
		buf, readTimeout,
	)
	if err != nil {
		return nil, err
	}
	if n != length {
		return nil, &transport.CommError{
			Cmd: transport.CmdReadFlash,
			Err: fmt.Errorf("short read: got %d of %d bytes", n, length),
		}
	}
	return buf, nil
}

// ReadRange reads total bytes starting at addr, issuing successive Read
// calls of min(MaxTransfer, remaining) and advancing by the bytes actually
// returned. The result is the exact concatenation, no gaps or overlaps.
func (c *Client) ReadRange(addr uint32, total int) ([]byte, error) {
	if total < 0 {
		return nil, &transport.ConfigError{Op: "flash read", Reason: "negative length"}
	}

	out := make([]byte, 0, total)
	for len(out) < total {
		chunk := total - len(out)
		if chunk > MaxTransfer {
			chunk = MaxTransfer
		}
		b, err := c.Read(addr, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
		addr += uint32(len(b))
	}
	return out, nil
}

// ClearLog triggers the device-side log erase. Its only observable effect
// is that a subsequent count read returns 0.
func (c *Client) ClearLog() error {
	dummy := make([]byte, 4)
	_, err := c.cc.Control(transport.CmdClearErrorLog, transport.DirOut, 0, 0, dummy, clearTimeout)
	return err
}
