// internal/stream/convert.go
package stream

import (
	"encoding/binary"
	"fmt"
)

// Convert expands a flat packed-word capture buffer into one 32-bit value
// per register per capture. Words are 16-bit little-endian; a 2-byte
// register maps to one word, a 4-byte register combines two consecutive
// words low-first. Pure transform: no state, no IO.
//
// The register set must be the one active when the buffer was captured.
// Packet.Values applies that guarantee; callers converting raw data
// directly are responsible for it.
func Convert(data []byte, rs RegisterSet) ([]uint32, error) {
	if err := rs.Validate(); err != nil {
		return nil, err
	}

	bytesPerCapture := rs.WordsPerCapture() * 2
	if len(data) == 0 || len(data)%bytesPerCapture != 0 {
		return nil, fmt.Errorf("stream: buffer length %d not a multiple of capture size %d",
			len(data), bytesPerCapture)
	}

	captures := len(data) / bytesPerCapture
	out := make([]uint32, 0, captures*len(rs))

	pos := 0
	for c := 0; c < captures; c++ {
		for _, r := range rs {
			switch r.Width {
			case 2:
				out = append(out, uint32(binary.LittleEndian.Uint16(data[pos:])))
				pos += 2
			case 4:
				lo := uint32(binary.LittleEndian.Uint16(data[pos:]))
				hi := uint32(binary.LittleEndian.Uint16(data[pos+2:]))
				out = append(out, lo|hi<<16)
				pos += 4
			}
		}
	}
	return out, nil
}
