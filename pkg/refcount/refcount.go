// Package refcount implements the shared buffers behind large string cores.
//
// A shared block is one allocation laid out as
//
//	[ refcount uint64 | data bytes ... | terminator ]
//
// and is referred to by a pointer to its data region. The header sits at a
// fixed negative offset from that pointer, so a Handle needs nothing but the
// data pointer and the capacity to reach the whole block. All pointer
// arithmetic lives in this file.
package refcount

import (
	"sync/atomic"
	"unsafe"

	"github.com/rawbytedev/strcore/internal/assert"
	"github.com/rawbytedev/strcore/pkg/alloc"
)

// HeaderSize is the offset of the data region from the start of the block.
const HeaderSize = 8

// Handle refers to one shared block. Copying a Handle does not change the
// reference count; use Retain and Release.
type Handle struct {
	data     unsafe.Pointer
	capacity int
}

// FromData rebuilds the handle of a block from its data pointer and the
// capacity reported when the block was created or reallocated.
func FromData(data unsafe.Pointer, capacity int) Handle {
	assert.That(data != nil, "refcount: nil data pointer")
	return Handle{data: data, capacity: capacity}
}

// Create allocates a block with room for at least size bytes plus a
// terminator. The reference count starts at one.
func Create(a alloc.Allocator, size int) (Handle, error) {
	assert.That(size >= 0, "refcount: negative size %d", size)
	b, err := a.Alloc(HeaderSize + size + 1)
	if err != nil {
		return Handle{}, err
	}
	h := fromBlock(b)
	h.counter().Store(1)
	return h, nil
}

// CreateFrom allocates a block and copies src into it.
func CreateFrom(a alloc.Allocator, src []byte) (Handle, error) {
	h, err := Create(a, len(src))
	if err != nil {
		return Handle{}, err
	}
	copy(h.Bytes(), src)
	return h, nil
}

// Reallocate grows an unshared block to at least newCapacity bytes, keeping
// the first size bytes and the terminator slot after them. The old handle is
// invalid afterwards. Reallocating a block with other owners would move the
// bytes out from under them, so it panics.
func Reallocate(a alloc.Allocator, h Handle, size, newCapacity int) (Handle, error) {
	assert.That(newCapacity > 0 && newCapacity > size, "refcount: reallocate size %d to %d", size, newCapacity)
	assert.That(h.Refs() == 1, "refcount: reallocate of block with %d owners", h.Refs())

	b, err := alloc.SmartRealloc(a, h.block(),
		HeaderSize+size+1,
		HeaderSize+h.capacity+1,
		HeaderSize+newCapacity+1)
	if err != nil {
		return Handle{}, err
	}
	nh := fromBlock(b)
	assert.That(nh.Refs() == 1, "refcount: header lost in reallocation")
	return nh, nil
}

func fromBlock(b []byte) Handle {
	b = b[:cap(b)]
	return Handle{
		data:     unsafe.Pointer(&b[HeaderSize]),
		capacity: len(b) - HeaderSize - 1,
	}
}

// Data returns the pointer to the first data byte.
func (h Handle) Data() unsafe.Pointer { return h.data }

// Capacity returns the number of data bytes, excluding the terminator slot.
func (h Handle) Capacity() int { return h.capacity }

// Bytes returns the data region including the terminator slot.
func (h Handle) Bytes() []byte {
	return unsafe.Slice((*byte)(h.data), h.capacity+1)
}

func (h Handle) block() []byte {
	return unsafe.Slice((*byte)(unsafe.Add(h.data, -HeaderSize)), HeaderSize+h.capacity+1)
}

func (h Handle) counter() *atomic.Uint64 {
	return (*atomic.Uint64)(unsafe.Add(h.data, -HeaderSize))
}

// Refs returns the current number of owners.
func (h Handle) Refs() int {
	return int(h.counter().Load())
}

// Retain adds an owner.
func (h Handle) Retain() Handle {
	h.counter().Add(1)
	return h
}

// Release drops an owner and frees the block when it was the last one. It
// reports whether the block was freed; h must not be used after that.
func (h Handle) Release(a alloc.Allocator) bool {
	prev := h.counter().Add(^uint64(0)) + 1
	assert.That(prev != 0, "refcount: release of dead block")
	if prev == 1 {
		a.Free(h.block())
		return true
	}
	return false
}
