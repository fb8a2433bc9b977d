// Package corewire serializes sets of string cores into a checksummed
// snapshot frame:
//
//	magic    2 bytes  0x53 0x43
//	type     1 byte   TypeSnapshot
//	length   uint32   whole frame including the CRC, little endian
//	flags    1 byte
//	count    varint
//	entries  count times:
//	           category  1 byte
//	           flags     1 byte (EntryCompressed)
//	           raw len   varint
//	           stored    varint
//	           payload   stored bytes, zstd when EntryCompressed
//	crc      uint32   IEEE over everything after the magic
//
// Long entries are compressed when that makes them shorter. Decoding
// restores each core's category where the size allows it.
package corewire

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"math"
)

const (
	Magic0 = 0x53
	Magic1 = 0x43

	TypeSnapshot = 0x01
)

// frame flags
const (
	FlagCompressed = 1 << iota // at least one entry is compressed
)

// entry flags
const (
	EntryCompressed = 1 << iota
)

const (
	headerSize = 2 + 1 + 4 + 1
	crcSize    = 4
	// MaxFrame is the largest frame the uint32 length field can describe.
	MaxFrame = math.MaxUint32
)

var (
	ErrNotSnapshot = errors.New("corewire: not a snapshot frame")
	ErrCorrupt     = errors.New("corewire: corrupt frame")
	ErrCRC         = errors.New("corewire: crc mismatch")
	ErrTooLarge    = errors.New("corewire: frame too large")
)

func writePreamble(dst []byte, typ byte) []byte {
	return append(dst, Magic0, Magic1, typ)
}

func readPreamble(b []byte) (byte, error) {
	if len(b) < 3 || b[0] != Magic0 || b[1] != Magic1 {
		return 0, ErrNotSnapshot
	}
	return b[2], nil
}

// seal fills in the length field of the frame starting at start and appends
// the CRC.
func seal(out []byte, start int) ([]byte, error) {
	total := len(out) - start + crcSize
	if total > MaxFrame {
		return nil, ErrTooLarge
	}
	binary.LittleEndian.PutUint32(out[start+3:], uint32(total))
	crc := crc32.ChecksumIEEE(out[start+2:])
	return binary.LittleEndian.AppendUint32(out, crc), nil
}

// Verify checks the preamble, length and CRC of frame and returns the body
// between the header and the CRC, along with the frame flags.
func Verify(frame []byte) (body []byte, flags byte, err error) {
	typ, err := readPreamble(frame)
	if err != nil {
		return nil, 0, err
	}
	if typ != TypeSnapshot {
		return nil, 0, ErrNotSnapshot
	}
	if len(frame) < headerSize+crcSize {
		return nil, 0, ErrCorrupt
	}
	if int(binary.LittleEndian.Uint32(frame[3:])) != len(frame) {
		return nil, 0, ErrCorrupt
	}
	end := len(frame) - crcSize
	if crc32.ChecksumIEEE(frame[2:end]) != binary.LittleEndian.Uint32(frame[end:]) {
		return nil, 0, ErrCRC
	}
	return frame[headerSize:end], frame[7], nil
}
