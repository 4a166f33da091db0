// internal/errlog/store.go
package errlog

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tamzrod/sensor-bridge/internal/flash"
)

// ErrLogUnavailable is returned by fault sinks that cannot persist a
// record, typically because logging itself depends on the failed
// subsystem. Recording is best-effort; callers may drop this error.
var ErrLogUnavailable = errors.New("errlog: log store unavailable")

// Store reads and clears the flash-resident fault log. It owns no live
// device state; it is a pure reader over the flash region.
type Store struct {
	flash *flash.Client
}

func NewStore(f *flash.Client) *Store {
	return &Store{flash: f}
}

// Count reads the raw record count. No upper validation here; the value is
// returned as stored. Entries applies the capacity clamp.
func (s *Store) Count() (uint32, error) {
	b, err := s.flash.Read(CountAddr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Entries reads the full log, oldest-to-newest as laid out in flash.
//
// A count of zero returns an empty result without touching the record
// region. Counts above MaxRecords are clamped; the store trusts record
// order as stored and does not attempt wraparound-aware reordering, so a
// wrapped circular log may present entries rotated relative to write time.
func (s *Store) Entries() ([]Entry, error) {
	count, err := s.Count()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	if count > MaxRecords {
		count = MaxRecords
	}

	raw, err := s.flash.ReadRange(RecordBase, int(count)*RecordSize)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		e, err := DecodeEntry(raw[i*RecordSize:])
		if err != nil {
			// Layout disagreement. A partial log would mislead; abort.
			return nil, fmt.Errorf("errlog: record %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Clear erases the device-side log. A subsequent Count returns 0.
func (s *Store) Clear() error {
	return s.flash.ClearLog()
}
