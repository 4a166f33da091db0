// internal/stream/registers.go
package stream

import "fmt"

// Register describes one capture target: word address, register page, and
// byte width on the device (2 or 4; a 4-byte register occupies two packed
// words in the capture buffer).
type Register struct {
	Address uint16
	Page    uint16
	Width   int
}

// RegisterSet is the ordered capture list for one streaming session.
// Shared, read-only for the session's lifetime; a new session gets a new
// set, the active one is never mutated.
type RegisterSet []Register

// Validate checks widths. Geometry only: no device semantics.
func (rs RegisterSet) Validate() error {
	if len(rs) == 0 {
		return fmt.Errorf("stream: register set is empty")
	}
	for i, r := range rs {
		if r.Width != 2 && r.Width != 4 {
			return fmt.Errorf("stream: register %d: width %d not 2 or 4", i, r.Width)
		}
	}
	return nil
}

// WordsPerCapture is the number of packed 16-bit words one capture of this
// set produces.
func (rs RegisterSet) WordsPerCapture() int {
	words := 0
	for _, r := range rs {
		words += r.Width / 2
	}
	return words
}

// clone returns an independent copy so the session's set cannot alias
// caller storage.
func (rs RegisterSet) clone() RegisterSet {
	out := make(RegisterSet, len(rs))
	copy(out, rs)
	return out
}
