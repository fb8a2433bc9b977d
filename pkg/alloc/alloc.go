// Package alloc supplies the block allocators behind string cores.
//
// Blocks are plain byte slices whose capacity is the whole allocation. The
// capacity may exceed the requested length when the request is rounded up to
// the runtime's size class; callers read it back as the effective capacity.
// A block must be handed back to Free or Realloc with its full capacity.
package alloc

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// ErrOutOfMemory reports that a request could not be satisfied.
var ErrOutOfMemory = errors.New("out of memory")

// MaxAlloc is the largest block any allocator in this package hands out:
// 2^47-1 bytes on 64-bit hosts, 2^30-1 on 32-bit hosts.
const MaxAlloc = math.MaxInt>>16 | math.MaxInt32>>1

// Allocator manages raw blocks.
type Allocator interface {
	// Alloc returns a zeroed block of length n.
	Alloc(n int) ([]byte, error)
	// Realloc returns a block of length n whose first len(b) bytes equal b.
	// b is released unless it is returned.
	Realloc(b []byte, n int) ([]byte, error)
	// Free releases b.
	Free(b []byte)
}

// Error carries the failing operation and request size.
type Error struct {
	Op   string
	Size int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("alloc: %s %d bytes: %v", e.Op, e.Size, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func oom(op string, n int) error {
	return &Error{Op: op, Size: n, Err: ErrOutOfMemory}
}

type holder struct{ a Allocator }

var current atomic.Pointer[holder]

func init() {
	current.Store(&holder{a: NewHeap(HeapOptions{})})
}

// Current returns the process-wide allocator.
func Current() Allocator {
	return current.Load().a
}

// Use installs a as the process-wide allocator and returns a function that
// restores the previous one. Blocks must be freed by the allocator that
// produced them, so swap only while no cores are alive.
func Use(a Allocator) (restore func()) {
	prev := current.Swap(&holder{a: a})
	return func() { current.Store(prev) }
}
