// internal/transport/errors_test.go
package transport

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds_Distinguishable(t *testing.T) {
	cfg := &ConfigError{Op: "flash read", Reason: "address out of range"}
	comm := &CommError{Cmd: CmdReadFlash, Err: errors.New("timeout")}

	if !IsConfig(cfg) || IsComm(cfg) {
		t.Fatalf("ConfigError misclassified")
	}
	if !IsComm(comm) || IsConfig(comm) {
		t.Fatalf("CommError misclassified")
	}
}

func TestErrorKinds_SurviveWrapping(t *testing.T) {
	err := fmt.Errorf("get log: %w", &CommError{Cmd: CmdReadFlash, Err: errors.New("stall")})
	if !IsComm(err) {
		t.Fatalf("wrapped CommError not detected")
	}

	err = fmt.Errorf("open: %w", ErrNoDevice)
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("wrapped ErrNoDevice not detected")
	}
}

func TestCommError_Unwrap(t *testing.T) {
	inner := errors.New("pipe")
	err := &CommError{Cmd: CmdI2CWrite, Err: inner}
	if !errors.Is(err, inner) {
		t.Fatalf("Unwrap broken")
	}
}
