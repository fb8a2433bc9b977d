package alloc

import (
	"sync"
	"unsafe"
)

// Counting wraps an Allocator and tracks every live block by its base
// address. Freeing a block it does not know about panics, which catches
// double frees and frees routed to the wrong allocator.
type Counting struct {
	inner Allocator

	mu       sync.Mutex
	live     map[*byte]int
	allocs   int64
	frees    int64
	reallocs int64
}

// NewCounting wraps inner; a nil inner gets a default Heap.
func NewCounting(inner Allocator) *Counting {
	if inner == nil {
		inner = NewHeap(HeapOptions{})
	}
	return &Counting{inner: inner, live: make(map[*byte]int)}
}

func base(b []byte) *byte {
	return unsafe.SliceData(b[:cap(b)])
}

func (c *Counting) Alloc(n int) ([]byte, error) {
	b, err := c.inner.Alloc(n)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.live[base(b)] = cap(b)
	c.allocs++
	c.mu.Unlock()
	return b, nil
}

func (c *Counting) Realloc(b []byte, n int) ([]byte, error) {
	old := base(b)
	c.mu.Lock()
	_, ok := c.live[old]
	c.mu.Unlock()
	if !ok {
		panic("alloc: realloc of unknown block")
	}
	nb, err := c.inner.Realloc(b, n)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	delete(c.live, old)
	c.live[base(nb)] = cap(nb)
	c.reallocs++
	c.mu.Unlock()
	return nb, nil
}

func (c *Counting) Free(b []byte) {
	p := base(b)
	c.mu.Lock()
	if _, ok := c.live[p]; !ok {
		c.mu.Unlock()
		panic("alloc: free of unknown or already freed block")
	}
	delete(c.live, p)
	c.frees++
	c.mu.Unlock()
	c.inner.Free(b)
}

// Live returns the number of blocks not yet freed.
func (c *Counting) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// LiveBytes returns the capacity held by live blocks.
func (c *Counting) LiveBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.live {
		total += n
	}
	return total
}

// Allocs returns the number of successful Alloc calls.
func (c *Counting) Allocs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocs
}

// Frees returns the number of Free calls.
func (c *Counting) Frees() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frees
}

// Reallocs returns the number of successful Realloc calls.
func (c *Counting) Reallocs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reallocs
}
