package alloc

import "sync/atomic"

// PoisonByte fills freed blocks when HeapOptions.Poison is set.
const PoisonByte = 0xDD

// HeapOptions configures a Heap.
type HeapOptions struct {
	Limit  int  // byte budget over live blocks; 0 means unlimited
	Poison bool // overwrite freed blocks with PoisonByte
}

// Heap allocates from the Go heap. Freed blocks are left to the garbage
// collector; Free only settles the budget and optionally poisons the bytes so
// a stale reader sees garbage instead of plausible data.
type Heap struct {
	opts  HeapOptions
	inUse atomic.Int64
}

func NewHeap(opts HeapOptions) *Heap {
	return &Heap{opts: opts}
}

// InUse returns the bytes held by live blocks.
func (h *Heap) InUse() int {
	return int(h.inUse.Load())
}

func (h *Heap) Alloc(n int) ([]byte, error) {
	if n < 0 || n > MaxAlloc {
		return nil, oom("alloc", n)
	}
	want := max(n, 1)
	// appending a make'd slice rounds the capacity up to the size class
	b := append([]byte(nil), make([]byte, want)...)
	if !h.charge(cap(b)) {
		return nil, oom("alloc", n)
	}
	return b[:n], nil
}

func (h *Heap) Realloc(b []byte, n int) ([]byte, error) {
	if n < 0 || n > MaxAlloc {
		return nil, oom("realloc", n)
	}
	if n <= cap(b) {
		return b[:n], nil
	}
	nb, err := h.Alloc(n)
	if err != nil {
		return nil, oom("realloc", n)
	}
	copy(nb, b)
	h.Free(b)
	return nb, nil
}

func (h *Heap) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	b = b[:cap(b)]
	h.inUse.Add(-int64(len(b)))
	if h.opts.Poison {
		for i := range b {
			b[i] = PoisonByte
		}
	}
}

func (h *Heap) charge(n int) bool {
	used := h.inUse.Add(int64(n))
	if h.opts.Limit > 0 && used > int64(h.opts.Limit) {
		h.inUse.Add(-int64(n))
		return false
	}
	return true
}
