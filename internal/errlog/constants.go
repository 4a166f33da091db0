// internal/errlog/constants.go
package errlog

// Error log flash layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- LOG GEOMETRY ----

// CountAddr is the flash address of the 4-byte record count (u32 LE).
const CountAddr = 0x34000

// RecordBase is the flash address of the first log record.
const RecordBase = 0x34040

// RecordSize is the exact size of one record in flash.
const RecordSize = 32

// MaxRecords caps how many records are read regardless of the stored
// count. Defensive bound against a corrupted count field, not a
// correctness guarantee.
const MaxRecords = 1500

// ---- RECORD FIELD OFFSETS ----

// Bytes 0-3 of each record are reserved and ignored by the decoder.
const (
	offLine        = 4
	offErrorCode   = 8
	offTimestamp   = 12
	offFile        = 16
	offFirmwareRev = 20
)

// FirmwareRevLen is the fixed width of the firmware revision field.
// Raw UTF-8, not guaranteed null-terminated.
const FirmwareRevLen = 12

// ---- MODULE IDENTIFIERS ----

// FileID is the enum-coded module recorded with each fault.
type FileID uint32

const (
	FileUnknown FileID = iota
	FileTransport
	FileFlash
	FileErrLog
	FileBusExec
	FileStream
)

// String returns a string representation of the module identifier.
func (f FileID) String() string {
	switch f {
	case FileTransport:
		return "transport"
	case FileFlash:
		return "flash"
	case FileErrLog:
		return "errlog"
	case FileBusExec:
		return "busexec"
	case FileStream:
		return "stream"
	default:
		return "unknown"
	}
}
