// internal/bus/executor.go
package bus

import (
	"fmt"
	"runtime"
	"time"

	"github.com/tamzrod/sensor-bridge/internal/errlog"
)

// Bus is the physical bus master the executor drives. One call is one
// attempt; retry policy lives in the executor.
type Bus interface {
	Receive(pre Preamble, buf []byte, timeout time.Duration) error
	Transmit(pre Preamble, data []byte, timeout time.Duration) error
}

// Error is a bus-level failure carrying the subsystem status code that
// gets persisted into the fault log.
type Error struct {
	Code uint32
	Op   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("bus: %s failed: status 0x%x", e.Op, e.Code)
}

// FaultSink persists one fault record. Recording is best-effort: if the
// sink itself needs the failed subsystem the attempt may fail, and the
// executor does not let that mask the transaction error.
type FaultSink interface {
	Record(e errlog.Entry) error
}

// Executor unpacks transaction payloads and runs them against the bus.
// It owns the transient preamble and data buffer for the duration of one
// transaction only.
type Executor struct {
	bus     Bus
	retries int
	sink    FaultSink

	bootTimestamp uint32
	firmwareRev   string
}

// NewExecutor creates an executor with per-attempt retry bound retries
// (0 means a single attempt). sink may be nil to disable fault logging.
func NewExecutor(b Bus, retries int, sink FaultSink, bootTimestamp uint32, firmwareRev string) *Executor {
	if retries < 0 {
		retries = 0
	}
	return &Executor{
		bus:           b,
		retries:       retries,
		sink:          sink,
		bootTimestamp: bootTimestamp,
		firmwareRev:   firmwareRev,
	}
}

// HandleRead parses a read request payload, pulls NumBytes from the bus
// and returns them for hand-off to the outbound bulk channel.
func (x *Executor) HandleRead(payload []byte) ([]byte, error) {
	req, err := Decode(payload, false)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, req.NumBytes)
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond

	err = x.attempt(func() error {
		return x.bus.Receive(req.Preamble, buf, timeout)
	})
	if err != nil {
		x.logFault(callerLine(), err)
		return nil, err
	}
	return buf, nil
}

// HandleWrite parses a write request payload and pushes the trailing data
// onto the bus.
func (x *Executor) HandleWrite(payload []byte) error {
	req, err := Decode(payload, true)
	if err != nil {
		return err
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond

	err = x.attempt(func() error {
		return x.bus.Transmit(req.Preamble, req.WriteData, timeout)
	})
	if err != nil {
		x.logFault(callerLine(), err)
		return err
	}
	return nil
}

// attempt runs op up to retries+1 times. The retry bound applies at the
// bus level only; USB-level failures are never retried anywhere.
func (x *Executor) attempt(op func() error) error {
	var err error
	for i := 0; i <= x.retries; i++ {
		if err = op(); err == nil {
			return nil
		}
	}
	return err
}

// logFault records the failure so a silent field failure stays diagnosable.
// Best-effort: a sink error is dropped, the bus error is what surfaces.
func (x *Executor) logFault(line uint32, err error) {
	if x.sink == nil {
		return
	}
	code := uint32(1)
	if be, ok := err.(*Error); ok {
		code = be.Code
	}
	_ = x.sink.Record(errlog.Entry{
		Line:             line,
		FileIdentifier:   uint32(errlog.FileBusExec),
		ErrorCode:        code,
		BootTimestamp:    x.bootTimestamp,
		FirmwareRevision: x.firmwareRev,
	})
}

func callerLine() uint32 {
	_, _, line, ok := runtime.Caller(1)
	if !ok {
		return 0
	}
	return uint32(line)
}
