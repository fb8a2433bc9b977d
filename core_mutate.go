package strcore

import (
	"unsafe"

	"github.com/rawbytedev/strcore/internal/assert"
	"github.com/rawbytedev/strcore/pkg/alloc"
	"github.com/rawbytedev/strcore/pkg/refcount"
)

// Reserve makes Capacity() at least n, moving c to a larger category when n
// does not fit the current one. It never lowers the capacity. On error c is
// unchanged.
func (c *Core) Reserve(n int) error {
	assert.That(n >= 0, "reserve: negative capacity %d", n)
	if err := c.reserve(n); err != nil {
		return wrap("reserve", err)
	}
	c.checkInvariants("reserve")
	return nil
}

func (c *Core) reserve(n int) error {
	from := c.Category()
	var err error
	switch from {
	case Small:
		err = c.reserveSmall(n)
	case Medium:
		err = c.reserveMedium(n)
	case Large:
		err = c.reserveLarge(n)
	}
	if err != nil {
		return err
	}
	if to := c.Category(); to != from {
		logTransition("reserve", from, to, c.mlSize(), c.mlCapacity())
	}
	assert.That(c.Capacity() >= n, "reserve: capacity %d below %d", c.Capacity(), n)
	return nil
}

func (c *Core) reserveSmall(n int) error {
	if n <= MaxSmall {
		return nil
	}
	size := c.smallSize()
	if n <= MaxMedium {
		block, err := alloc.Current().Alloc(n + 1)
		if err != nil {
			return err
		}
		block = block[:cap(block)]
		copy(block, c.raw()[:size+1])
		c.setHeap(unsafe.Pointer(&block[0]), size, len(block)-1, Medium)
		return nil
	}
	h, err := refcount.Create(alloc.Current(), n)
	if err != nil {
		return err
	}
	copy(h.Bytes(), c.raw()[:size+1])
	c.setHeap(h.Data(), size, h.Capacity(), Large)
	return nil
}

func (c *Core) reserveMedium(n int) error {
	if n <= c.Capacity() {
		return nil
	}
	size, capacity := c.mlSize(), c.mlCapacity()
	if n <= MaxMedium {
		block, err := alloc.SmartRealloc(alloc.Current(), c.heapBytes(capacity+1), size+1, capacity+1, n+1)
		if err != nil {
			return err
		}
		block = block[:cap(block)]
		c.setHeap(unsafe.Pointer(&block[0]), size, len(block)-1, Medium)
		return nil
	}

	nascent := Empty()
	if err := nascent.reserveSmall(n); err != nil {
		return err
	}
	copy(nascent.heapBytes(size+1), c.heapBytes(size+1))
	nascent.setMLSize(size)
	nascent.Swap(c)
	nascent.Release()
	return nil
}

func (c *Core) reserveLarge(n int) error {
	if c.handle().Refs() > 1 {
		return c.unshare(n)
	}
	if n <= c.mlCapacity() {
		return nil
	}
	h, err := refcount.Reallocate(alloc.Current(), c.handle(), c.mlSize(), n)
	if err != nil {
		return err
	}
	c.setHeap(h.Data(), c.mlSize(), h.Capacity(), Large)
	return nil
}

// Unshare gives a large core a private block of at least max(n, Capacity())
// bytes. Other owners of the old block keep seeing its bytes unchanged.
func (c *Core) Unshare(n int) error {
	assert.That(c.Category() == Large, "unshare: %s core", c.Category())
	if err := c.unshare(n); err != nil {
		return wrap("unshare", err)
	}
	c.checkInvariants("unshare")
	return nil
}

func (c *Core) unshare(n int) error {
	old := c.handle()
	size := c.mlSize()
	h, err := refcount.Create(alloc.Current(), max(n, old.Capacity()))
	if err != nil {
		return err
	}
	copy(h.Bytes(), old.Bytes()[:size+1])
	old.Release(alloc.Current())
	c.setHeap(h.Data(), size, h.Capacity(), Large)
	logTransition("unshare", Large, Large, size, h.Capacity())
	return nil
}

// ExpandNoinit grows the string by delta bytes and returns the new region for
// the caller to fill. Its contents are unspecified. With overgrow set, a
// reallocation reserves extra room so repeated appends cost amortized
// constant time. On error c is unchanged.
func (c *Core) ExpandNoinit(delta int, overgrow bool) ([]byte, error) {
	assert.That(delta >= 0, "expand: negative delta %d", delta)
	if delta == 0 {
		return nil, nil
	}
	if c.Category() == Small {
		size := c.smallSize()
		n := size + delta
		if n <= MaxSmall {
			c.setSmallSize(n)
			c.checkInvariants("expand")
			return c.raw()[size:n:n], nil
		}
		target := n
		if overgrow {
			target = max(n, 2*MaxSmall)
		}
		if err := c.reserve(target); err != nil {
			return nil, wrap("expand", err)
		}
	} else if n := c.mlSize() + delta; n > c.Capacity() {
		target := n
		if overgrow {
			target = max(n, 1+c.Capacity()*3/2)
		}
		if err := c.reserve(target); err != nil {
			return nil, wrap("expand", err)
		}
	}

	size := c.mlSize()
	n := size + delta
	assert.That(c.Capacity() >= n, "expand: capacity %d below %d", c.Capacity(), n)
	c.setMLSize(n)
	b := c.heapBytes(n + 1)
	b[n] = 0
	c.checkInvariants("expand")
	return b[size:n:n], nil
}

// PushBack appends one byte. Like every mutator it extends whatever c
// holds, so on a zero Core the result starts with MaxSmall zero bytes.
func (c *Core) PushBack(b byte) error {
	p, err := c.ExpandNoinit(1, true)
	if err != nil {
		return err
	}
	p[0] = b
	return nil
}

// Append appends p, which may alias c's own contents. A zero Core is not
// empty; see Core.
func (c *Core) Append(p []byte) error {
	if c.aliases(p) {
		p = append([]byte(nil), p...)
	}
	dst, err := c.ExpandNoinit(len(p), true)
	if err != nil {
		return err
	}
	copy(dst, p)
	return nil
}

// Shrink drops the last delta bytes. Owned storage is truncated in place and
// keeps its category, even a medium core shrunk to nothing. A shared large
// core is rebuilt at the new size in whatever category fits it, leaving the
// other owners untouched.
func (c *Core) Shrink(delta int) error {
	size := c.Size()
	assert.That(delta >= 0 && delta <= size, "shrink: delta %d for size %d", delta, size)
	switch {
	case c.Category() == Small:
		c.setSmallSize(size - delta)
	case !c.IsShared():
		c.setMLSize(size - delta)
		c.heapBytes(size - delta + 1)[size-delta] = 0
	case delta > 0:
		n, err := newCore(c.Data()[:size-delta])
		if err != nil {
			return wrap("shrink", err)
		}
		n.Swap(c)
		n.Release()
		logTransition("shrink", Large, c.Category(), c.Size(), c.Capacity())
	}
	c.checkInvariants("shrink")
	return nil
}
