// internal/transport/usb/client.go
package usb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/tamzrod/sensor-bridge/internal/transport"
)

// Config is minimal transport config.
type Config struct {
	VID uint16
	PID uint16

	// BulkInEndpoint is the endpoint number of the device's data channel.
	BulkInEndpoint int

	// ConnectAttempts bounds device discovery. One attempt per loop
	// iteration; no recursion, no unbounded waits.
	ConnectAttempts int
	ConnectDelay    time.Duration

	// Logger receives exchange-level debug records. Nil disables logging.
	Logger *slog.Logger
}

// Client implements transport.ControlClient and transport.BulkReader over a
// vendor-class USB device.
//
// The control endpoint is a single shared resource: mu serializes all
// control exchanges. Bulk reads run on their own endpoint and do not take
// the mutex, so stream retrieval may interleave with control traffic.
type Client struct {
	mu     sync.Mutex
	ctx    *gousb.Context
	dev    *gousb.Device
	intf   *gousb.Interface
	done   func()
	bulkIn *gousb.InEndpoint
	log    *slog.Logger
}

// Open locates and claims the device. Discovery is retried up to
// cfg.ConnectAttempts times; when the bound is reached the call fails with
// transport.ErrNoDevice.
func Open(cfg Config) (*Client, error) {
	if cfg.ConnectAttempts < 1 {
		cfg.ConnectAttempts = 1
	}

	ctx := gousb.NewContext()

	var dev *gousb.Device
	for attempt := 0; attempt < cfg.ConnectAttempts; attempt++ {
		if attempt > 0 && cfg.ConnectDelay > 0 {
			time.Sleep(cfg.ConnectDelay)
		}

		d, err := ctx.OpenDeviceWithVIDPID(gousb.ID(cfg.VID), gousb.ID(cfg.PID))
		if err != nil {
			ctx.Close()
			return nil, fmt.Errorf("usb: open %04x:%04x: %w", cfg.VID, cfg.PID, err)
		}
		if d != nil {
			dev = d
			break
		}
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("usb: %04x:%04x after %d attempts: %w",
			cfg.VID, cfg.PID, cfg.ConnectAttempts, transport.ErrNoDevice)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usb: auto-detach: %w", err)
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usb: claim interface: %w", err)
	}

	ep, err := intf.InEndpoint(cfg.BulkInEndpoint)
	if err != nil {
		done()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usb: bulk-in endpoint %d: %w", cfg.BulkInEndpoint, err)
	}

	return &Client{
		ctx:    ctx,
		dev:    dev,
		intf:   intf,
		done:   done,
		bulkIn: ep,
		log:    cfg.Logger,
	}, nil
}

// Control performs one vendor control exchange. Exchanges are serialized;
// a failure is reported as transport.CommError and never retried here.
func (c *Client) Control(cmd transport.Command, dir transport.Direction, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	if len(buf) > transport.MaxPayload {
		return 0, &transport.ConfigError{
			Op:     "control",
			Reason: fmt.Sprintf("payload %d exceeds %d", len(buf), transport.MaxPayload),
		}
	}

	rType := uint8(gousb.ControlVendor | gousb.ControlDevice)
	if dir == transport.DirIn {
		rType |= uint8(gousb.ControlIn)
	} else {
		rType |= uint8(gousb.ControlOut)
	}

	c.mu.Lock()
	c.dev.ControlTimeout = timeout
	n, err := c.dev.Control(rType, uint8(cmd), value, index, buf)
	c.mu.Unlock()

	if c.log != nil {
		c.log.Debug("control exchange",
			"cmd", fmt.Sprintf("0x%02x", uint8(cmd)),
			"dir", int(dir), "len", len(buf), "n", n, "err", err)
	}
	if err != nil {
		return 0, &transport.CommError{Cmd: cmd, Err: err}
	}
	return n, nil
}

// ReadBulk reads one buffer from the bulk-in channel.
func (c *Client) ReadBulk(buf []byte, timeout time.Duration) (int, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.bulkIn.ReadContext(ctx, buf)
}

// Close releases the interface and device.
func (c *Client) Close() error {
	if c.done != nil {
		c.done()
	}
	if c.dev != nil {
		if err := c.dev.Close(); err != nil {
			c.ctx.Close()
			return err
		}
	}
	return c.ctx.Close()
}
