// internal/bus/payload.go
package bus

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tamzrod/sensor-bridge/internal/transport"
)

// Wire layout of one bus transaction request, carried in a single control
// transfer payload:
//
//	offset 0  numBytes        u32 LE   bus data length
//	offset 4  timeout         u32 LE   bus-level timeout, ms
//	offset 8  preambleLength  u8
//	offset 9  controlMask     u16 LE
//	offset 11 preamble        preambleLength bytes
//	then      writeData       numBytes bytes, writes only
//
// HeaderLen is the fixed portion; write data starts at
// HeaderLen+preambleLength. Any change here MUST be propagated to both
// Encode and Decode, and is pinned by the boundary tests.
const HeaderLen = 11

// MaxPreambleLen bounds the addressing preamble.
const MaxPreambleLen = 8

// MaxReadLen bounds one bus read; it is the size of the device's bulk
// scratch buffer.
const MaxReadLen = transport.MaxBulkPayload

var (
	ErrTruncated    = errors.New("bus: payload truncated")
	ErrPreambleSize = errors.New("bus: preamble length out of range")
)

// Preamble describes the addressing bytes preceding bus data. ControlMask
// carries per-byte direction or select control; Bytes is the raw preamble.
// Constructed fresh per transaction, never persisted.
type Preamble struct {
	ControlMask uint16
	Bytes       []byte
}

// Request is one generic bus transaction: read NumBytes after the preamble,
// or write the trailing WriteData. TimeoutMS bounds the bus operation and
// is distinct from the USB-transfer timeout.
type Request struct {
	NumBytes  uint32
	TimeoutMS uint32
	Preamble  Preamble
	WriteData []byte // nil for reads
}

// Encode packs the request into one control-transfer payload.
func (r *Request) Encode() ([]byte, error) {
	plen := len(r.Preamble.Bytes)
	if plen > MaxPreambleLen {
		return nil, ErrPreambleSize
	}
	if r.WriteData != nil && len(r.WriteData) != int(r.NumBytes) {
		return nil, fmt.Errorf("bus: write data length %d != numBytes %d", len(r.WriteData), r.NumBytes)
	}

	total := HeaderLen + plen + len(r.WriteData)
	if total > transport.MaxPayload {
		return nil, fmt.Errorf("bus: encoded request %d bytes exceeds control payload ceiling %d",
			total, transport.MaxPayload)
	}

	p := make([]byte, total)
	binary.LittleEndian.PutUint32(p[0:], r.NumBytes)
	binary.LittleEndian.PutUint32(p[4:], r.TimeoutMS)
	p[8] = byte(plen)
	binary.LittleEndian.PutUint16(p[9:], r.Preamble.ControlMask)
	copy(p[HeaderLen:], r.Preamble.Bytes)
	copy(p[HeaderLen+plen:], r.WriteData)
	return p, nil
}

// Decode parses a request payload with bounds checks at every field.
// Truncated payloads are rejected before any bus activity. For writes the
// trailing data must be present in full.
func Decode(p []byte, isWrite bool) (Request, error) {
	if len(p) < HeaderLen {
		return Request{}, fmt.Errorf("%w: %d of %d header bytes", ErrTruncated, len(p), HeaderLen)
	}

	var r Request
	r.NumBytes = binary.LittleEndian.Uint32(p[0:])
	r.TimeoutMS = binary.LittleEndian.Uint32(p[4:])

	plen := int(p[8])
	if plen > MaxPreambleLen {
		return Request{}, ErrPreambleSize
	}
	r.Preamble.ControlMask = binary.LittleEndian.Uint16(p[9:])

	if len(p) < HeaderLen+plen {
		return Request{}, fmt.Errorf("%w: preamble needs %d bytes, have %d",
			ErrTruncated, HeaderLen+plen, len(p))
	}
	r.Preamble.Bytes = append([]byte(nil), p[HeaderLen:HeaderLen+plen]...)

	if isWrite {
		dataStart := HeaderLen + plen
		if len(p) < dataStart+int(r.NumBytes) {
			return Request{}, fmt.Errorf("%w: write data needs %d bytes, have %d",
				ErrTruncated, dataStart+int(r.NumBytes), len(p))
		}
		r.WriteData = append([]byte(nil), p[dataStart:dataStart+int(r.NumBytes)]...)
	} else if r.NumBytes > MaxReadLen {
		return Request{}, fmt.Errorf("bus: read of %d bytes exceeds scratch buffer %d", r.NumBytes, MaxReadLen)
	}

	return r, nil
}
