// internal/stream/engine_test.go
package stream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tamzrod/sensor-bridge/internal/transport"
)

// fakeControl records the arm/stop commands the engine issues.
type fakeControl struct {
	mu    sync.Mutex
	calls []ctrlCall
	err   error
}

type ctrlCall struct {
	cmd     transport.Command
	value   uint16
	index   uint16
	payload []byte
}

func (f *fakeControl) Control(cmd transport.Command, dir transport.Direction, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ctrlCall{cmd, value, index, append([]byte(nil), buf...)})
	if f.err != nil {
		return 0, f.err
	}
	return len(buf), nil
}

func (f *fakeControl) commands() []transport.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transport.Command, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.cmd
	}
	return out
}

// fakeSource serves up to limit capture buffers immediately, then reports
// that no data-ready event arrived.
type fakeSource struct {
	mu     sync.Mutex
	limit  int
	served int
}

func (s *fakeSource) ReadBuffer(buf []byte, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.served >= s.limit {
		return 0, errors.New("no data-ready event")
	}
	s.served++
	for i := range buf {
		buf[i] = byte(s.served)
	}
	return len(buf), nil
}

var testRegs = RegisterSet{
	{Address: 0x04, Page: 0, Width: 2},
	{Address: 0x28, Page: 0, Width: 4},
}

func testConfig(numBuffers int) Config {
	return Config{
		Registers:         testRegs,
		CapturesPerBuffer: 2,
		NumBuffers:        numBuffers,
		Timeout:           time.Second,
	}
}

// collect polls NextPacket until n packets arrive or the deadline passes.
func collect(t *testing.T, e *Engine, n int) []Packet {
	t.Helper()
	var out []Packet
	deadline := time.Now().Add(2 * time.Second)
	for len(out) < n {
		if time.Now().After(deadline) {
			t.Fatalf("collected %d of %d packets before deadline", len(out), n)
		}
		p, ok, err := e.NextPacket()
		if err != nil {
			t.Fatalf("NextPacket err=%v", err)
		}
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		out = append(out, p)
	}
	return out
}

func TestSession_DeliversExactlyNumBuffers(t *testing.T) {
	cc := &fakeControl{}
	e := NewEngine(cc, &fakeSource{limit: 5}, time.Second)

	if err := e.Start(testConfig(5)); err != nil {
		t.Fatalf("Start err=%v", err)
	}

	pkts := collect(t, e, 5)
	for i, p := range pkts {
		if p.Seq != i {
			t.Fatalf("packet %d out of order: seq=%d", i, p.Seq)
		}
	}

	if got := e.State(); got != Idle {
		t.Fatalf("state after full delivery: %v", got)
	}

	// A sixth call reports no data; it does not block or error.
	p, ok, err := e.NextPacket()
	if ok || err != nil {
		t.Fatalf("sixth call: pkt=%+v ok=%v err=%v", p, ok, err)
	}
}

func TestStart_SendsArmCommand(t *testing.T) {
	cc := &fakeControl{}
	e := NewEngine(cc, &fakeSource{limit: 1}, time.Second)

	if err := e.Start(testConfig(1)); err != nil {
		t.Fatalf("Start err=%v", err)
	}
	collect(t, e, 1)

	cc.mu.Lock()
	defer cc.mu.Unlock()
	if len(cc.calls) != 1 || cc.calls[0].cmd != transport.CmdStreamStart {
		t.Fatalf("arm command not sent: %+v", cc.calls)
	}
	arm := cc.calls[0]
	if arm.value != 2 || arm.index != 1 {
		t.Fatalf("arm geometry: value=%d index=%d", arm.value, arm.index)
	}
	// Two registers, 5 bytes each in the descriptor list.
	if len(arm.payload) != 10 {
		t.Fatalf("register list payload: % x", arm.payload)
	}
}

func TestStart_RejectsWhileActive(t *testing.T) {
	cc := &fakeControl{}
	e := NewEngine(cc, &fakeSource{limit: 2}, time.Second)

	if err := e.Start(testConfig(2)); err != nil {
		t.Fatalf("Start err=%v", err)
	}
	if err := e.Start(testConfig(2)); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
}

func TestStart_ValidatesBeforeArming(t *testing.T) {
	cc := &fakeControl{}
	e := NewEngine(cc, &fakeSource{}, time.Second)

	cfg := testConfig(1)
	cfg.CapturesPerBuffer = 0
	if err := e.Start(cfg); !transport.IsConfig(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if len(cc.commands()) != 0 {
		t.Fatalf("arm command sent for invalid config")
	}
}

func TestStart_ArmFailureReturnsToIdle(t *testing.T) {
	cc := &fakeControl{err: &transport.CommError{Cmd: transport.CmdStreamStart, Err: errors.New("stall")}}
	e := NewEngine(cc, &fakeSource{}, time.Second)

	if err := e.Start(testConfig(1)); !transport.IsComm(err) {
		t.Fatalf("expected CommError, got %v", err)
	}
	if got := e.State(); got != Idle {
		t.Fatalf("state after failed arm: %v", got)
	}
}

func TestSession_TimesOutWithoutData(t *testing.T) {
	cc := &fakeControl{}
	e := NewEngine(cc, &fakeSource{limit: 0}, time.Second)

	cfg := testConfig(3)
	cfg.Timeout = 20 * time.Millisecond
	if err := e.Start(cfg); err != nil {
		t.Fatalf("Start err=%v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		_, ok, err := e.NextPacket()
		if errors.Is(err, ErrTimedOut) {
			break
		}
		if ok {
			t.Fatalf("unexpected packet from empty source")
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never timed out")
		}
		time.Sleep(time.Millisecond)
	}

	if got := e.State(); got != TimedOut {
		t.Fatalf("state: %v", got)
	}
}

func TestPacket_PinsCaptureRegisterSet(t *testing.T) {
	cc := &fakeControl{}
	e := NewEngine(cc, &fakeSource{limit: 1}, time.Second)

	if err := e.Start(testConfig(1)); err != nil {
		t.Fatalf("Start err=%v", err)
	}
	pkt := collect(t, e, 1)[0]

	// Start a new session with a different register set; the captured
	// packet must still decode with the set active at capture time.
	other := Config{
		Registers:         RegisterSet{{Address: 0x10, Width: 2}},
		CapturesPerBuffer: 1,
		NumBuffers:        1,
		Timeout:           time.Second,
	}
	if err := e.Start(other); err != nil {
		t.Fatalf("restart err=%v", err)
	}

	if len(pkt.Registers) != len(testRegs) {
		t.Fatalf("packet register set replaced: %+v", pkt.Registers)
	}
	values, err := pkt.Values()
	if err != nil {
		t.Fatalf("Values err=%v", err)
	}
	// 2 captures x 2 registers.
	if len(values) != 4 {
		t.Fatalf("got %d values", len(values))
	}
}

func TestSession_DrainsQueuedAfterCaptureStalls(t *testing.T) {
	// Device captured 2 buffers, then the data-ready events stopped.
	cc := &fakeControl{}
	e := NewEngine(cc, &fakeSource{limit: 2}, time.Second)

	cfg := testConfig(5)
	cfg.Timeout = 50 * time.Millisecond
	if err := e.Start(cfg); err != nil {
		t.Fatalf("Start err=%v", err)
	}

	// Both completed buffers must be retrievable after the stall; a
	// stalled producer must not make queued data unreachable.
	pkts := collect(t, e, 2)
	if pkts[0].Seq != 0 || pkts[1].Seq != 1 {
		t.Fatalf("packets out of order: %d, %d", pkts[0].Seq, pkts[1].Seq)
	}

	// Only once the queue is dry does the retrieval clock expire.
	deadline := time.Now().Add(time.Second)
	for {
		_, ok, err := e.NextPacket()
		if errors.Is(err, ErrTimedOut) {
			break
		}
		if ok {
			t.Fatalf("packet beyond source limit")
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never timed out after drain")
		}
		time.Sleep(time.Millisecond)
	}
	if got := e.State(); got != TimedOut {
		t.Fatalf("state: %v", got)
	}
}

// gatedSource blocks its first read until released, simulating a capture
// stall that outlives the session; later reads deliver immediately.
type gatedSource struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
}

func (s *gatedSource) ReadBuffer(buf []byte, timeout time.Duration) (int, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()

	if first {
		<-s.gate
		return 0, errors.New("no data-ready event")
	}
	for i := range buf {
		buf[i] = 0xA5
	}
	return len(buf), nil
}

func TestStart_AfterTimeoutFencesStaleProducer(t *testing.T) {
	src := &gatedSource{gate: make(chan struct{})}
	cc := &fakeControl{}
	e := NewEngine(cc, src, time.Second)

	// Session 1: the producer blocks on its first read; the retrieval
	// clock times the session out underneath it.
	cfg := testConfig(1)
	cfg.Timeout = 20 * time.Millisecond
	if err := e.Start(cfg); err != nil {
		t.Fatalf("Start err=%v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		_, _, err := e.NextPacket()
		if errors.Is(err, ErrTimedOut) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session 1 never timed out")
		}
		time.Sleep(time.Millisecond)
	}

	// Session 2 replaces it while the stale producer is still blocked.
	if err := e.Start(testConfig(1)); err != nil {
		t.Fatalf("restart err=%v", err)
	}

	// Release the stale producer. It must not flip the new session's
	// state or feed it data.
	close(src.gate)
	time.Sleep(10 * time.Millisecond)

	if got := e.State(); got == TimedOut {
		t.Fatalf("stale producer corrupted new session: state=%v", got)
	}

	pkts := collect(t, e, 1)
	if pkts[0].Data[0] != 0xA5 {
		t.Fatalf("packet data: % x", pkts[0].Data[:4])
	}
	if got := e.State(); got != Idle {
		t.Fatalf("state after delivery: %v", got)
	}
}

func TestStart_CaptureBufferCeiling(t *testing.T) {
	cc := &fakeControl{}
	e := NewEngine(cc, &fakeSource{}, time.Second)

	// 1 register x 2 B: 6144 captures sit exactly at the 12288-byte
	// bulk buffer; one more must be rejected before arming.
	cfg := Config{
		Registers:         RegisterSet{{Address: 0x00, Width: 2}},
		CapturesPerBuffer: 6145,
		NumBuffers:        1,
		Timeout:           time.Second,
	}
	if err := e.Start(cfg); !transport.IsConfig(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if len(cc.commands()) != 0 {
		t.Fatalf("arm command sent for oversized buffer")
	}

	cfg.CapturesPerBuffer = 6144
	if err := e.Start(cfg); err != nil {
		t.Fatalf("unexpected error at ceiling: %v", err)
	}
}

func TestStop_DiscardsUndelivered(t *testing.T) {
	cc := &fakeControl{}
	e := NewEngine(cc, &fakeSource{limit: 4}, time.Second)

	if err := e.Start(testConfig(4)); err != nil {
		t.Fatalf("Start err=%v", err)
	}
	collect(t, e, 1)

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop err=%v", err)
	}
	if got := e.State(); got != Idle {
		t.Fatalf("state after stop: %v", got)
	}

	p, ok, err := e.NextPacket()
	if ok || err != nil {
		t.Fatalf("packet after stop: pkt=%+v ok=%v err=%v", p, ok, err)
	}

	cmds := cc.commands()
	if cmds[len(cmds)-1] != transport.CmdStreamStop {
		t.Fatalf("stop command not sent: %v", cmds)
	}
}
