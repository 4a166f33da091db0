// internal/transport/errors.go
package transport

import (
	"errors"
	"fmt"
)

// ErrNoDevice is returned when device discovery exhausts its attempt bound.
var ErrNoDevice = errors.New("transport: device not present")

// ConfigError reports a caller-supplied argument that violates a documented
// precondition. It is always raised before any transfer is attempted.
type ConfigError struct {
	Op     string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("transport: %s: %s", e.Op, e.Reason)
}

// CommError reports a control exchange that did not complete: device busy,
// stall, or timeout. It is never retried at this layer.
type CommError struct {
	Cmd Command
	Err error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("transport: control exchange cmd=0x%02x failed: %v", uint8(e.Cmd), e.Err)
}

func (e *CommError) Unwrap() error { return e.Err }

// IsConfig reports whether err is a precondition violation.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsComm reports whether err is a failed control exchange.
func IsComm(err error) bool {
	var ce *CommError
	return errors.As(err, &ce)
}
