// Package zc (zero-copy) holds views that alias a core's bytes instead of
// copying them. A view is valid only until the next mutating call on the
// core or its Release; holding one past that reads freed or rewritten
// memory. Nothing here allocates.
package zc

import (
	"bytes"
	"unsafe"

	"github.com/rawbytedev/strcore"
)

// String returns the contents of c as a string sharing c's storage.
func String(c *strcore.Core) string {
	d := c.Data()
	if len(d) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(d), len(d))
}

// Bytes returns the bytes of s without copying. They must not be written.
func Bytes(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// SameBlock reports whether a and b read from the same memory, as two
// clones of a large core do until one of them is written.
func SameBlock(a, b *strcore.Core) bool {
	da, db := a.Data(), b.Data()
	return len(da) > 0 && len(da) == len(db) && unsafe.SliceData(da) == unsafe.SliceData(db)
}

// Equal reports whether a and b hold the same bytes.
func Equal(a, b *strcore.Core) bool {
	if a.Size() != b.Size() {
		return false
	}
	return SameBlock(a, b) || bytes.Equal(a.Data(), b.Data())
}

// EqualString compares c with s without converting either.
func EqualString(c *strcore.Core, s string) bool {
	return String(c) == s
}
