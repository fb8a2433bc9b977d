// Package common holds the varint helpers shared by the wire formats.
package common

import "errors"

// ErrShortVarint reports a varint cut off by the end of its buffer or longer
// than ten bytes.
var ErrShortVarint = errors.New("truncated varint")

// WriteVarUintTo appends varint-encoded x to dst using a small stack scratch.
func WriteVarUintTo(dst []byte, x uint64) []byte {
	var scratch [10]byte
	i := 0
	for x >= 0x80 {
		scratch[i] = byte(x) | 0x80
		x >>= 7
		i++
	}
	scratch[i] = byte(x)
	i++
	return append(dst, scratch[:i]...)
}

// VarUintLen returns the encoded width of x.
func VarUintLen(x uint64) int {
	n := 1
	for x >= 0x80 {
		x >>= 7
		n++
	}
	return n
}

// ReadVarUint decodes a varint from b returning value and bytes consumed.
// It consumes nothing when b holds no complete varint.
func ReadVarUint(b []byte) (uint64, int) {
	var x uint64
	var s uint
	for i, c := range b {
		if i == 10 {
			return 0, 0
		}
		x |= uint64(c&0x7F) << s
		if c&0x80 == 0 {
			return x, i + 1
		}
		s += 7
	}
	return 0, 0
}

// ReadVarInt is ReadVarUint for lengths: it fails when the value does not
// fit an int or exceeds limit.
func ReadVarInt(b []byte, limit int) (int, int, error) {
	x, n := ReadVarUint(b)
	if n == 0 {
		return 0, 0, ErrShortVarint
	}
	if x > uint64(limit) {
		return 0, n, errors.New("varint out of range")
	}
	return int(x), n, nil
}
