package alloc

import "github.com/rawbytedev/strcore/internal/assert"

// SmartRealloc grows block from capacity to newCapacity bytes, keeping the
// first size bytes. When more than half of size is slack, a fresh block is
// allocated and only the live bytes are copied; otherwise the whole block is
// resized through Realloc. block must be a full block of at least capacity
// bytes.
func SmartRealloc(a Allocator, block []byte, size, capacity, newCapacity int) ([]byte, error) {
	assert.That(size <= capacity && capacity < newCapacity,
		"smart realloc: size %d, capacity %d, new capacity %d", size, capacity, newCapacity)
	assert.That(cap(block) >= capacity, "smart realloc: block of %d bytes, capacity %d", cap(block), capacity)

	slack := capacity - size
	if slack*2 > size {
		nb, err := a.Alloc(newCapacity)
		if err != nil {
			return nil, err
		}
		copy(nb, block[:size])
		a.Free(block)
		return nb, nil
	}
	return a.Realloc(block[:capacity], newCapacity)
}
