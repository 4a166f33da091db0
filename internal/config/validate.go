// internal/config/validate.go
package config

import (
	"fmt"
)

// Hard limits tied to the device protocol. Validation rejects configs that
// could never produce a legal transfer. Capture buffers travel on the bulk
// channel and are bounded by the device's bulk scratch buffer, not by the
// control payload ceiling.
const (
	maxBulkBuffer = 12288
	maxLabelChars = 16
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	// ------------------------------------------------------------
	// DEVICE IDENTITY
	// ------------------------------------------------------------

	d := cfg.Bridge.Device

	if d.VID == 0 || d.PID == 0 {
		return fmt.Errorf("device: vid and pid are required")
	}

	// label sanity (ASCII only)
	for i := 0; i < len(d.Label); i++ {
		if d.Label[i] > 0x7F {
			return fmt.Errorf("device: label must contain ASCII characters only")
		}
	}

	if d.BulkInEndpoint < 1 || d.BulkInEndpoint > 15 {
		return fmt.Errorf("device: bulk_in_endpoint %d out of range 1-15", d.BulkInEndpoint)
	}
	if d.ControlTimeoutMs < 0 || d.ConnectDelayMs < 0 {
		return fmt.Errorf("device: timeouts must not be negative")
	}

	// ------------------------------------------------------------
	// BUS
	// ------------------------------------------------------------

	if cfg.Bridge.I2C.RetryCount < 0 {
		return fmt.Errorf("i2c: retry_count must not be negative")
	}
	if cfg.Bridge.I2C.TimeoutMs < 0 {
		return fmt.Errorf("i2c: timeout_ms must not be negative")
	}

	// ------------------------------------------------------------
	// STREAM GEOMETRY
	// ------------------------------------------------------------

	s := cfg.Bridge.Stream
	if len(s.Registers) == 0 {
		// stream section is optional
		return nil
	}

	if s.CapturesPerBuffer < 1 {
		return fmt.Errorf("stream: captures_per_buffer must be >= 1")
	}
	if s.NumBuffers < 1 {
		return fmt.Errorf("stream: num_buffers must be >= 1")
	}
	if s.TimeoutMs < 1 {
		return fmt.Errorf("stream: timeout_ms must be >= 1")
	}

	words := 0
	for i, r := range s.Registers {
		if r.Width != 2 && r.Width != 4 {
			return fmt.Errorf("stream: register %d: width %d not 2 or 4", i, r.Width)
		}
		words += r.Width / 2
	}

	if bufBytes := words * 2 * s.CapturesPerBuffer; bufBytes > maxBulkBuffer {
		return fmt.Errorf(
			"stream: capture buffer %d bytes exceeds bulk buffer %d",
			bufBytes,
			maxBulkBuffer,
		)
	}

	return nil
}
