// internal/stream/engine.go
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tamzrod/sensor-bridge/internal/transport"
)

// State is the engine's session state.
type State int

const (
	Idle State = iota
	Armed
	Streaming
	TimedOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Streaming:
		return "streaming"
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

var (
	// ErrSessionActive is returned by Start while a session is live.
	ErrSessionActive = errors.New("stream: session already active")

	// ErrTimedOut is returned by NextPacket once no buffer has completed
	// within the session timeout since the last successful retrieval.
	ErrTimedOut = errors.New("stream: session timed out")
)

// Source delivers one completed capture buffer per call. The device drives
// buffer completion; the source blocks up to timeout for one to finish.
// This is the bulk/DMA channel, so reads interleave safely with control
// exchanges.
type Source interface {
	ReadBuffer(buf []byte, timeout time.Duration) (int, error)
}

// Config arms one streaming session.
type Config struct {
	Registers         RegisterSet
	CapturesPerBuffer int
	NumBuffers        int
	Timeout           time.Duration
}

// Packet is one completed capture buffer. Registers is the set that was
// active when the buffer was captured, pinned at capture time so a later
// session cannot change how this data decodes.
type Packet struct {
	Seq       int
	Data      []byte
	Registers RegisterSet
}

// Values converts the packet's packed words using its own register set.
func (p *Packet) Values() ([]uint32, error) {
	return Convert(p.Data, p.Registers)
}

// Engine coordinates device-driven capture with host-driven polling.
// Production and consumption run as independent activities connected only
// by a bounded channel; delivery order is FIFO.
type Engine struct {
	cc         transport.ControlClient
	src        Source
	usbTimeout time.Duration

	mu          sync.Mutex
	state       State
	cfg         Config
	packets     chan Packet
	delivered   int
	lastSuccess time.Time
	cancel      chan struct{}

	// gen fences producers: a goroutine from an earlier session must
	// not touch the state of the one that replaced it.
	gen int
}

func NewEngine(cc transport.ControlClient, src Source, usbTimeout time.Duration) *Engine {
	return &Engine{cc: cc, src: src, usbTimeout: usbTimeout, state: Idle}
}

// State reports the current session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start arms a session: it validates the config, sends the stream-start
// command with the register list, and launches the capture producer. Only
// valid from Idle (or TimedOut, which a new session clears).
func (e *Engine) Start(cfg Config) error {
	if err := cfg.Registers.Validate(); err != nil {
		return err
	}
	if cfg.CapturesPerBuffer < 1 {
		return &transport.ConfigError{Op: "stream start", Reason: "captures per buffer must be >= 1"}
	}
	if cfg.NumBuffers < 1 {
		return &transport.ConfigError{Op: "stream start", Reason: "buffer count must be >= 1"}
	}
	if cfg.Timeout <= 0 {
		return &transport.ConfigError{Op: "stream start", Reason: "timeout must be positive"}
	}
	bufBytes := cfg.Registers.WordsPerCapture() * 2 * cfg.CapturesPerBuffer
	if bufBytes > transport.MaxBulkPayload {
		return &transport.ConfigError{
			Op:     "stream start",
			Reason: fmt.Sprintf("capture buffer %d exceeds bulk buffer %d", bufBytes, transport.MaxBulkPayload),
		}
	}

	e.mu.Lock()
	if e.state == Streaming || e.state == Armed {
		e.mu.Unlock()
		return ErrSessionActive
	}
	// Release the producer of a timed-out predecessor session before its
	// slot is reused.
	if e.cancel != nil {
		close(e.cancel)
	}
	e.gen++
	gen := e.gen
	e.cfg = cfg
	e.cfg.Registers = cfg.Registers.clone()
	e.packets = make(chan Packet, cfg.NumBuffers)
	e.delivered = 0
	e.lastSuccess = time.Now()
	e.cancel = make(chan struct{})
	e.state = Armed
	sessionCfg := e.cfg
	packets := e.packets
	cancel := e.cancel
	e.mu.Unlock()

	payload := encodeRegisterList(sessionCfg.Registers)
	if _, err := e.cc.Control(
		transport.CmdStreamStart, transport.DirOut,
		uint16(cfg.CapturesPerBuffer), uint16(cfg.NumBuffers),
		payload, e.usbTimeout,
	); err != nil {
		e.mu.Lock()
		if e.gen == gen {
			e.state = Idle
			close(e.cancel)
			e.cancel = nil
		}
		e.mu.Unlock()
		return err
	}

	go e.produce(gen, sessionCfg, packets, cancel)
	return nil
}

// produce reads completed buffers off the bulk channel until the session's
// buffer budget is met or the session is cancelled. The packets channel is
// sized for the full session, so sends never block.
//
// A failed read only stops production: the retrieval clock in NextPacket
// is the sole timeout authority, so buffers already captured stay
// retrievable after a stall.
func (e *Engine) produce(gen int, cfg Config, out chan<- Packet, cancel <-chan struct{}) {
	e.transition(gen, Armed, Streaming)

	bufBytes := cfg.Registers.WordsPerCapture() * 2 * cfg.CapturesPerBuffer

	for seq := 0; seq < cfg.NumBuffers; seq++ {
		select {
		case <-cancel:
			return
		default:
		}

		buf := make([]byte, bufBytes)
		n, err := e.src.ReadBuffer(buf, cfg.Timeout)

		// Anything read after cancellation belongs to no session.
		select {
		case <-cancel:
			return
		default:
		}

		if err != nil || n != bufBytes {
			return
		}

		out <- Packet{Seq: seq, Data: buf, Registers: cfg.Registers}
	}
}

// NextPacket returns the next completed buffer, or ok=false when none has
// arrived yet. It never blocks: absence of data is a normal outcome the
// caller polls around. Once the configured buffer count has been delivered
// the session returns to Idle and further calls report no data.
func (e *Engine) NextPacket() (Packet, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Idle {
		return Packet{}, false, nil
	}

	// Drain completed buffers before anything else: a packet the device
	// already captured stays retrievable even once the session has
	// timed out.
	select {
	case p := <-e.packets:
		e.delivered++
		e.lastSuccess = time.Now()
		if e.delivered >= e.cfg.NumBuffers {
			e.state = Idle
			if e.cancel != nil {
				close(e.cancel)
				e.cancel = nil
			}
		}
		return p, true, nil
	default:
	}

	if e.state == TimedOut {
		return Packet{}, false, ErrTimedOut
	}
	if time.Since(e.lastSuccess) > e.cfg.Timeout {
		e.state = TimedOut
		return Packet{}, false, ErrTimedOut
	}
	return Packet{}, false, nil
}

// Stop cancels the session cooperatively: the stop command is issued,
// the producer is released, and captured-but-unretrieved buffers are
// discarded.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state == Idle {
		e.mu.Unlock()
		return nil
	}
	if e.cancel != nil {
		close(e.cancel)
		e.cancel = nil
	}
	e.state = Idle
	e.packets = nil
	e.mu.Unlock()

	_, err := e.cc.Control(transport.CmdStreamStop, transport.DirOut, 0, 0, nil, e.usbTimeout)
	return err
}

// transition moves the state machine only when the caller's session is
// still current and the from-state holds. Stale producers fail the
// generation check and touch nothing.
func (e *Engine) transition(gen int, from, to State) {
	e.mu.Lock()
	if e.gen == gen && e.state == from {
		e.state = to
	}
	e.mu.Unlock()
}

// encodeRegisterList packs the capture list for the stream-start payload:
// address(u16 LE), page(u16 LE), width(u8) per register.
func encodeRegisterList(rs RegisterSet) []byte {
	p := make([]byte, 0, len(rs)*5)
	var tmp [2]byte
	for _, r := range rs {
		binary.LittleEndian.PutUint16(tmp[:], r.Address)
		p = append(p, tmp[0], tmp[1])
		binary.LittleEndian.PutUint16(tmp[:], r.Page)
		p = append(p, tmp[0], tmp[1])
		p = append(p, byte(r.Width))
	}
	return p
}
