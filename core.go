// Package strcore is the storage layer of a byte string type. A Core picks
// one of three layouts as its contents change size:
//
//   - small:  up to MaxSmall bytes stored inline, no allocation
//   - medium: up to MaxMedium bytes in an exclusively owned heap block
//   - large:  a reference counted block shared between clones, copied on
//     the first write through MutableData
//
// The representation is exactly three machine words; see internal/layout for
// the bit encoding. Heap blocks come from alloc.Current() and are returned to
// it by Release, so a Core must be released exactly once.
//
// A Core is not safe for concurrent use. Distinct cores that share a large
// block may be cloned, read and released from different goroutines.
package strcore

import (
	"bytes"
	"errors"
	"fmt"
	"unsafe"

	"github.com/rawbytedev/strcore/internal/assert"
	"github.com/rawbytedev/strcore/internal/layout"
	"github.com/rawbytedev/strcore/pkg/alloc"
	"github.com/rawbytedev/strcore/pkg/refcount"
)

// Category is the layout a core currently uses.
type Category = layout.Category

const (
	Small  = layout.Small
	Medium = layout.Medium
	Large  = layout.Large
)

const (
	// MaxSmall is the longest string held inline.
	MaxSmall = layout.MaxSmall
	// MaxMedium is the longest string held in an owned block; anything
	// longer is stored in a shared block.
	MaxMedium = layout.MaxMedium
)

var order = layout.Native

// word indices for medium and large cores
const (
	wordAddr = iota
	wordSize
	wordCapacity
)

// noCopy makes go vet flag cores copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Core is a byte string in one of three layouts. The zero Core is not empty:
// it holds MaxSmall zero bytes, so appending to it yields a medium core of
// MaxSmall+1 bytes. Start from Empty or New instead.
type Core struct {
	_     noCopy
	words [layout.Words]uint
	// heap points at the data of a medium or large core and keeps the block
	// reachable; nil for small cores.
	heap unsafe.Pointer
}

// Empty returns an empty small core.
func Empty() *Core {
	c := &Core{}
	c.reset()
	return c
}

// New copies b into a new core. The category follows from len(b). Large
// contents go into a fresh shared block, never aliasing b.
func New(b []byte) (*Core, error) {
	c, err := newCore(b)
	if err != nil {
		return nil, wrap("new", err)
	}
	return c, nil
}

func newCore(b []byte) (*Core, error) {
	c := &Core{}
	var err error
	switch n := len(b); {
	case n <= MaxSmall:
		c.initSmall(b)
	case n <= MaxMedium:
		err = c.initMedium(b)
	default:
		err = c.initLarge(b)
	}
	if err != nil {
		return nil, err
	}
	assert.Debugf(func() bool { return c.Size() == len(b) && bytes.Equal(c.Data(), b) },
		"new: contents differ from source")
	return c, nil
}

// FromString is New for string input.
func FromString(s string) (*Core, error) {
	return New(unsafe.Slice(unsafe.StringData(s), len(s)))
}

// Adopt takes ownership of block, which must come from alloc.Current(), hold
// size bytes followed by a zero byte, and have cap(block) >= size+1. The core
// is always medium regardless of size. An empty block is freed at once and an
// empty small core returned.
func Adopt(block []byte, size int) *Core {
	assert.That(size >= 0 && cap(block) >= size+1, "adopt: size %d in block of %d bytes", size, cap(block))
	block = block[:cap(block)]
	assert.That(block[size] == 0, "adopt: no terminator at %d", size)

	c := Empty()
	if size == 0 {
		alloc.Current().Free(block)
		return c
	}
	c.setHeap(unsafe.Pointer(&block[0]), size, len(block)-1, Medium)
	return c
}

func (c *Core) initSmall(b []byte) {
	copy(c.raw()[:], b)
	c.setSmallSize(len(b))
}

func (c *Core) initMedium(b []byte) error {
	block, err := alloc.Current().Alloc(len(b) + 1)
	if err != nil {
		return err
	}
	block = block[:cap(block)]
	copy(block, b)
	block[len(b)] = 0
	c.setHeap(unsafe.Pointer(&block[0]), len(b), len(block)-1, Medium)
	return nil
}

func (c *Core) initLarge(b []byte) error {
	h, err := refcount.CreateFrom(alloc.Current(), b)
	if err != nil {
		return err
	}
	h.Bytes()[len(b)] = 0
	c.setHeap(h.Data(), len(b), h.Capacity(), Large)
	return nil
}

// Clone returns a core with the same contents. Small cores are copied
// bytewise, medium cores deep-copied and large cores share the block.
func (c *Core) Clone() (*Core, error) {
	n := &Core{}
	switch c.Category() {
	case Small:
		n.words = c.words
	case Medium:
		size := c.mlSize()
		block, err := alloc.Current().Alloc(size + 1)
		if err != nil {
			return nil, wrap("clone", err)
		}
		block = block[:cap(block)]
		copy(block, c.heapBytes(size+1))
		n.setHeap(unsafe.Pointer(&block[0]), size, len(block)-1, Medium)
	case Large:
		c.handle().Retain()
		n.words = c.words
		n.heap = c.heap
	}
	assert.Debugf(func() bool { return bytes.Equal(n.Data(), c.Data()) }, "clone: contents differ")
	return n, nil
}

// Move transfers the contents into a new core and leaves c empty.
func (c *Core) Move() *Core {
	n := &Core{words: c.words, heap: c.heap}
	c.reset()
	return n
}

// Release frees a medium block or drops this core's reference to a large
// one, then leaves c empty.
func (c *Core) Release() {
	switch c.Category() {
	case Medium:
		alloc.Current().Free(c.heapBytes(c.mlCapacity() + 1))
	case Large:
		c.handle().Release(alloc.Current())
	}
	c.reset()
}

// Swap exchanges the contents of two cores without allocating or touching
// reference counts.
func (c *Core) Swap(o *Core) {
	c.words, o.words = o.words, c.words
	c.heap, o.heap = o.heap, c.heap
}

// Category returns the current layout.
func (c *Core) Category() Category {
	return order.CategoryOf(c.raw()[layout.LastByte])
}

// Size returns the length of the string.
func (c *Core) Size() int {
	if c.Category() == Small {
		return c.smallSize()
	}
	return c.mlSize()
}

// Capacity returns how many bytes fit without reallocating. A shared large
// core reports its size: growing it has to unshare first. A medium core never
// reports room past MaxMedium, even when its block was rounded up further,
// unless it was adopted at a larger size.
func (c *Core) Capacity() int {
	switch c.Category() {
	case Small:
		return MaxSmall
	case Medium:
		return min(c.mlCapacity(), max(MaxMedium, c.mlSize()))
	case Large:
		if c.handle().Refs() > 1 {
			return c.mlSize()
		}
	}
	return c.mlCapacity()
}

// IsShared reports whether c is large and its block has other owners.
func (c *Core) IsShared() bool {
	return c.Category() == Large && c.handle().Refs() > 1
}

// Refs returns the number of owners of c's storage; 1 unless c is large.
func (c *Core) Refs() int {
	if c.Category() != Large {
		return 1
	}
	return c.handle().Refs()
}

// Data returns the contents. The slice aliases c's storage: it must not be
// written to and is invalid after the next mutating call or Release.
func (c *Core) Data() []byte {
	if c.Category() == Small {
		n := c.smallSize()
		return c.raw()[:n:n]
	}
	return c.heapBytes(c.mlSize())
}

// CString returns the contents followed by the zero terminator.
func (c *Core) CString() []byte {
	if c.Category() == Small {
		n := c.smallSize() + 1
		return c.raw()[:n:n]
	}
	return c.heapBytes(c.mlSize() + 1)
}

// MutableData returns the contents for writing. A shared large core first
// copies its block so the write stays invisible to other owners.
func (c *Core) MutableData() ([]byte, error) {
	if c.IsShared() {
		if err := c.unshare(0); err != nil {
			return nil, wrap("mutable data", err)
		}
	}
	return c.Data(), nil
}

// String returns a copy of the contents.
func (c *Core) String() string {
	return string(c.Data())
}

// Layout returns a copy of the raw three-word representation.
func (c *Core) Layout() [layout.Size]byte {
	return *c.raw()
}

func (c *Core) raw() *[layout.Size]byte {
	return (*[layout.Size]byte)(unsafe.Pointer(&c.words))
}

func (c *Core) reset() {
	c.words = [layout.Words]uint{}
	c.heap = nil
	c.setSmallSize(0)
}

func (c *Core) smallSize() int {
	n := order.UnpackSmallSize(c.raw()[layout.LastByte])
	assert.That(n >= 0 && n <= MaxSmall, "small size %d out of range", n)
	return n
}

func (c *Core) setSmallSize(n int) {
	assert.That(n >= 0 && n <= MaxSmall, "small size %d out of range", n)
	raw := c.raw()
	raw[layout.LastByte] = order.PackSmallSize(n)
	raw[n] = 0
}

func (c *Core) setHeap(p unsafe.Pointer, size, capacity int, cat Category) {
	assert.That(capacity >= size && capacity <= layout.MaxCapacity, "capacity %d for size %d", capacity, size)
	c.heap = p
	c.words[wordAddr] = uint(uintptr(p))
	c.words[wordSize] = uint(size)
	c.words[wordCapacity] = order.PackCapacity(uint(capacity), cat)
}

func (c *Core) mlSize() int {
	return int(c.words[wordSize])
}

func (c *Core) setMLSize(n int) {
	c.words[wordSize] = uint(n)
}

func (c *Core) mlCapacity() int {
	return int(order.UnpackCapacity(c.words[wordCapacity]))
}

func (c *Core) heapBytes(n int) []byte {
	return unsafe.Slice((*byte)(c.heap), n)
}

func (c *Core) handle() refcount.Handle {
	return refcount.FromData(c.heap, c.mlCapacity())
}

// aliases reports whether p points into c's storage.
func (c *Core) aliases(p []byte) bool {
	if len(p) == 0 {
		return false
	}
	var lo, hi uintptr
	if c.Category() == Small {
		lo = uintptr(unsafe.Pointer(&c.words))
		hi = lo + layout.Size
	} else {
		lo = uintptr(c.heap)
		hi = lo + uintptr(c.mlCapacity()) + 1
	}
	start := uintptr(unsafe.Pointer(unsafe.SliceData(p)))
	return start < hi && start+uintptr(len(p)) > lo
}

// invariants reports the first broken representation invariant.
func (c *Core) invariants() error {
	switch cat := c.Category(); cat {
	case Small:
		if c.heap != nil {
			return errors.New("small core holds heap pointer")
		}
		n := order.UnpackSmallSize(c.raw()[layout.LastByte])
		if n < 0 || n > MaxSmall {
			return fmt.Errorf("small size %d out of range", n)
		}
		if c.raw()[n] != 0 {
			return fmt.Errorf("small core not terminated at %d", n)
		}
	case Medium, Large:
		if c.heap == nil {
			return fmt.Errorf("%s core without heap block", cat)
		}
		if uintptr(c.words[wordAddr]) != uintptr(c.heap) {
			return fmt.Errorf("%s core address word out of sync", cat)
		}
		size, capacity := c.mlSize(), c.mlCapacity()
		if size > capacity {
			return fmt.Errorf("%s size %d exceeds capacity %d", cat, size, capacity)
		}
		if c.heapBytes(size + 1)[size] != 0 {
			return fmt.Errorf("%s core not terminated at %d", cat, size)
		}
		if cat == Large && c.handle().Refs() < 1 {
			return errors.New("large core with dead block")
		}
	default:
		return fmt.Errorf("invalid category tag %#x", c.raw()[layout.LastByte])
	}
	return nil
}

func (c *Core) checkInvariants(op string) {
	if !assert.Enabled {
		return
	}
	if err := c.invariants(); err != nil {
		assert.That(false, "%s: %v", op, err)
	}
}
