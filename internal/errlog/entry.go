// internal/errlog/entry.go
package errlog

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Entry is one decoded fault record. Immutable once constructed; created
// only by decoding a 32-byte flash record or by a device-side fault writer.
type Entry struct {
	Line             uint32
	FileIdentifier   uint32
	ErrorCode        uint32
	BootTimestamp    uint32
	FirmwareRevision string
}

// BootTime returns the boot timestamp as wall-clock time.
func (e Entry) BootTime() time.Time {
	return time.Unix(int64(e.BootTimestamp), 0)
}

func (e Entry) String() string {
	return fmt.Sprintf("%s line=%d code=0x%x boot=%s fw=%q",
		FileID(e.FileIdentifier), e.Line, e.ErrorCode,
		e.BootTime().UTC().Format(time.RFC3339), e.FirmwareRevision)
}

// DecodeEntry decodes exactly one RecordSize-byte flash record.
// A short buffer means device and host disagree on layout; callers must
// treat that as fatal for the whole log read.
func DecodeEntry(b []byte) (Entry, error) {
	if len(b) < RecordSize {
		return Entry{}, fmt.Errorf("errlog: record truncated: %d of %d bytes", len(b), RecordSize)
	}
	return Entry{
		Line:             binary.LittleEndian.Uint32(b[offLine:]),
		ErrorCode:        binary.LittleEndian.Uint32(b[offErrorCode:]),
		BootTimestamp:    binary.LittleEndian.Uint32(b[offTimestamp:]),
		FileIdentifier:   binary.LittleEndian.Uint32(b[offFile:]),
		FirmwareRevision: string(b[offFirmwareRev : offFirmwareRev+FirmwareRevLen]),
	}, nil
}

// EncodeEntry produces the RecordSize-byte flash representation.
// The firmware revision is truncated or zero-padded to FirmwareRevLen.
// No IO. No side effects.
func EncodeEntry(e Entry) []byte {
	b := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(b[offLine:], e.Line)
	binary.LittleEndian.PutUint32(b[offErrorCode:], e.ErrorCode)
	binary.LittleEndian.PutUint32(b[offTimestamp:], e.BootTimestamp)
	binary.LittleEndian.PutUint32(b[offFile:], e.FileIdentifier)
	copy(b[offFirmwareRev:offFirmwareRev+FirmwareRevLen], e.FirmwareRevision)
	return b
}
