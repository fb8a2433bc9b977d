package strcore

import (
	"bytes"
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/strcore/pkg/alloc"
)

func TestPushBackAcrossCategories(t *testing.T) {
	useCounting(t, alloc.HeapOptions{})
	want := pattern(3 * MaxMedium)
	c := Empty()
	defer c.Release()

	for i, b := range want {
		require.NoError(t, c.PushBack(b))
		require.Equal(t, i+1, c.Size())
		requireValid(t, c)
		// overgrowth may promote to large before MaxMedium is reached
		switch n := i + 1; {
		case n <= MaxSmall:
			require.Equal(t, Small, c.Category(), "size %d", n)
		case n == MaxSmall+1:
			require.Equal(t, Medium, c.Category(), "size %d", n)
		case n > MaxMedium:
			require.Equal(t, Large, c.Category(), "size %d", n)
		}
	}
	assert.Equal(t, want, c.Data())
}

func TestExpandOvergrowth(t *testing.T) {
	useCounting(t, alloc.HeapOptions{})
	c, err := New(pattern(MaxSmall))
	require.NoError(t, err)
	defer c.Release()

	p, err := c.ExpandNoinit(1, true)
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.Equal(t, Medium, c.Category())
	assert.GreaterOrEqual(t, c.Capacity(), 2*MaxSmall)

	d, err := New(pattern(MaxSmall))
	require.NoError(t, err)
	defer d.Release()
	_, err = d.ExpandNoinit(1, false)
	require.NoError(t, err)
	assert.Less(t, d.Capacity(), 2*MaxSmall, "exact growth rounds only to the size class")

	e, err := New(pattern(1000))
	require.NoError(t, err)
	defer e.Release()
	before := e.Capacity()
	_, err = e.ExpandNoinit(before-e.Size()+1, true)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, e.Capacity(), 1+before*3/2)
}

func TestExpandZeroIsNoop(t *testing.T) {
	counter := useCounting(t, alloc.HeapOptions{})
	c, err := New(pattern(400))
	require.NoError(t, err)
	d, err := c.Clone()
	require.NoError(t, err)
	allocs := counter.Allocs()

	p, err := d.ExpandNoinit(0, true)
	require.NoError(t, err)
	assert.Empty(t, p)
	assert.True(t, d.IsShared())
	assert.Equal(t, allocs, counter.Allocs())
	c.Release()
	d.Release()
}

func TestExpandWithinSmall(t *testing.T) {
	c := Empty()
	for n := 1; n <= MaxSmall; n++ {
		p, err := c.ExpandNoinit(1, true)
		require.NoError(t, err)
		require.Len(t, p, 1)
		p[0] = byte('a' + (n-1)%26)
		require.Equal(t, Small, c.Category())
		requireValid(t, c)
	}
	assert.Equal(t, pattern(MaxSmall), c.Data())
}

func TestAppendToZeroCoreKeepsItsBytes(t *testing.T) {
	useCounting(t, alloc.HeapOptions{})
	var z Core
	defer z.Release()
	require.NoError(t, z.PushBack('a'))
	assert.Equal(t, Medium, z.Category())
	assert.Equal(t, MaxSmall+1, z.Size())
	assert.Equal(t, append(make([]byte, MaxSmall), 'a'), z.Data())

	e := Empty()
	defer e.Release()
	require.NoError(t, e.PushBack('a'))
	assert.Equal(t, "a", e.String())
}

func TestExpandUnsharesLarge(t *testing.T) {
	useCounting(t, alloc.HeapOptions{})
	src := pattern(600)
	c, err := New(src)
	require.NoError(t, err)
	defer c.Release()
	d, err := c.Clone()
	require.NoError(t, err)
	defer d.Release()

	require.NoError(t, d.Append([]byte("tail")))
	assert.Equal(t, src, c.Data())
	assert.Equal(t, append(pattern(600), "tail"...), d.Data())
	assert.False(t, c.IsShared())
	requireValid(t, c)
	requireValid(t, d)
}

func TestAppendSelf(t *testing.T) {
	useCounting(t, alloc.HeapOptions{})
	for _, tc := range boundarySizes {
		c, err := New(pattern(tc.n))
		require.NoError(t, err)
		require.NoError(t, c.Append(c.Data()))
		want := append(pattern(tc.n), pattern(tc.n)...)
		assert.Equal(t, want, c.Data(), "size %d", tc.n)
		requireValid(t, c)
		c.Release()
	}
}

func TestReserveMonotonic(t *testing.T) {
	useCounting(t, alloc.HeapOptions{})
	condition := func(start uint8, reqs []uint16) bool {
		c, err := New(pattern(int(start)))
		if err != nil {
			return false
		}
		defer c.Release()
		for _, r := range reqs {
			before := c.Capacity()
			if err := c.Reserve(int(r)); err != nil {
				return false
			}
			if c.Capacity() < before || c.Capacity() < int(r) {
				return false
			}
			if !bytes.Equal(c.Data(), pattern(int(start))) || c.invariants() != nil {
				return false
			}
		}
		return true
	}
	err := quick.Check(condition, &quick.Config{MaxCount: 300})
	if err != nil {
		t.Errorf("Error: %v", err)
	}
}

func TestReserveTransitions(t *testing.T) {
	useCounting(t, alloc.HeapOptions{})
	tests := []struct {
		name  string
		size  int
		want  int
		after Category
	}{
		{"small stays small", 5, MaxSmall, Small},
		{"small to medium", 5, 100, Medium},
		{"small to large", 5, 1000, Large},
		{"medium grows", 50, MaxMedium, Medium},
		{"medium to large", 50, MaxMedium + 1, Large},
		{"large grows", 300, 5000, Large},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(pattern(tt.size))
			require.NoError(t, err)
			defer c.Release()
			require.NoError(t, c.Reserve(tt.want))
			assert.Equal(t, tt.after, c.Category())
			assert.GreaterOrEqual(t, c.Capacity(), tt.want)
			assert.Equal(t, pattern(tt.size), c.Data())
			requireValid(t, c)
		})
	}
}

func TestReserveSharedLargeUnshares(t *testing.T) {
	useCounting(t, alloc.HeapOptions{})
	c, err := New(pattern(300))
	require.NoError(t, err)
	defer c.Release()
	d, err := c.Clone()
	require.NoError(t, err)
	defer d.Release()

	require.NoError(t, d.Reserve(10))
	assert.False(t, d.IsShared(), "reserve on a shared core always unshares")
	assert.Equal(t, 1, c.Refs())
	assert.Equal(t, c.Data(), d.Data())
}

func TestUnshare(t *testing.T) {
	useCounting(t, alloc.HeapOptions{})
	c, err := New(pattern(300))
	require.NoError(t, err)
	defer c.Release()
	d, err := c.Clone()
	require.NoError(t, err)
	defer d.Release()
	capacity := c.mlCapacity()

	require.NoError(t, d.Unshare(2000))
	assert.Equal(t, 1, d.Refs())
	assert.Equal(t, 1, c.Refs())
	assert.GreaterOrEqual(t, d.Capacity(), 2000)
	assert.NotSame(t, &c.Data()[0], &d.Data()[0])

	e, err := c.Clone()
	require.NoError(t, err)
	defer e.Release()
	require.NoError(t, e.Unshare(0))
	assert.GreaterOrEqual(t, e.Capacity(), capacity, "unshare never drops below the old capacity")

	small := Empty()
	assert.Panics(t, func() { _ = small.Unshare(0) })
}

func TestShrink(t *testing.T) {
	useCounting(t, alloc.HeapOptions{})
	for _, tc := range boundarySizes {
		for _, k := range []int{0, 1, tc.n / 2, tc.n} {
			if k > tc.n {
				continue
			}
			c, err := New(pattern(tc.n))
			require.NoError(t, err)
			capacity := c.Capacity()
			require.NoError(t, c.Shrink(k))
			assert.Equal(t, tc.n-k, c.Size())
			assert.Equal(t, pattern(tc.n)[:tc.n-k], c.Data())
			assert.Equal(t, tc.cat, c.Category(), "owned storage keeps its category")
			assert.Equal(t, capacity, c.Capacity(), "owned storage is truncated in place")
			requireValid(t, c)
			c.Release()
		}
	}
}

func TestShrinkMediumToEmptyStaysMedium(t *testing.T) {
	useCounting(t, alloc.HeapOptions{})
	c, err := New(pattern(200))
	require.NoError(t, err)
	defer c.Release()
	require.NoError(t, c.Shrink(200))
	assert.Equal(t, Medium, c.Category())
	assert.Zero(t, c.Size())
	requireValid(t, c)
}

func TestShrinkSharedLargeDemotes(t *testing.T) {
	tests := []struct {
		name string
		keep int
		want Category
	}{
		{"to small", 10, Small},
		{"to medium", 100, Medium},
		{"to large", 500, Large},
		{"to empty", 0, Small},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := useCounting(t, alloc.HeapOptions{})
			src := pattern(1000)
			sibling, err := New(src)
			require.NoError(t, err)
			c, err := sibling.Clone()
			require.NoError(t, err)

			require.NoError(t, c.Shrink(1000-tt.keep))
			assert.Equal(t, tt.want, c.Category())
			assert.Equal(t, src[:tt.keep], c.Data())
			assert.Equal(t, 1, sibling.Refs(), "old block lost exactly one owner")
			assert.Equal(t, src, sibling.Data(), "sibling untouched")
			requireValid(t, c)
			requireValid(t, sibling)

			c.Release()
			sibling.Release()
			assert.Zero(t, counter.Live())
		})
	}
}

func TestShrinkSharedLargeOutOfMemory(t *testing.T) {
	useCounting(t, alloc.HeapOptions{Limit: 1100})
	src := pattern(1000)
	c, err := New(src)
	require.NoError(t, err)
	defer c.Release()
	d, err := c.Clone()
	require.NoError(t, err)
	defer d.Release()

	err = d.Shrink(500)
	require.ErrorIs(t, err, ErrOutOfMemory)
	assert.True(t, strings.HasPrefix(err.Error(), "strcore: shrink: alloc:"), err.Error())
	assert.Equal(t, 1, strings.Count(err.Error(), "strcore:"))
	assert.True(t, d.IsShared(), "failed shrink leaves the core as it was")
	assert.Equal(t, src, d.Data())
	requireValid(t, d)
}

func TestShrinkSharedLargeByZeroKeepsSharing(t *testing.T) {
	useCounting(t, alloc.HeapOptions{})
	c, err := New(pattern(300))
	require.NoError(t, err)
	defer c.Release()
	d, err := c.Clone()
	require.NoError(t, err)
	defer d.Release()
	require.NoError(t, d.Shrink(0))
	assert.True(t, d.IsShared())
}

func TestShrinkPastSizePanics(t *testing.T) {
	c, err := New(pattern(3))
	require.NoError(t, err)
	assert.Panics(t, func() { _ = c.Shrink(4) })
}

func TestMutatorsKeepTerminator(t *testing.T) {
	useCounting(t, alloc.HeapOptions{})
	c := Empty()
	defer c.Release()
	steps := []func() error{
		func() error { return c.Append(pattern(20)) },
		func() error { return c.Reserve(40) },
		func() error { return c.Append(pattern(200)) },
		func() error { return c.Shrink(30) },
		func() error { return c.PushBack('x') },
		func() error { return c.Append(pattern(100)) },
		func() error { return c.Reserve(2000) },
		func() error { return c.Shrink(5) },
		func() error { _, err := c.MutableData(); return err },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		requireValid(t, c)
	}
}

func FuzzMutations(f *testing.F) {
	f.Add([]byte("hello"), []byte{0, 1, 2, 3})
	f.Add(pattern(300), []byte{4, 4, 3, 1, 0})
	f.Fuzz(func(t *testing.T, seed, ops []byte) {
		c, err := New(seed)
		require.NoError(t, err)
		defer c.Release()
		model := append([]byte{}, seed...)
		var clones []*Core
		defer func() {
			for _, d := range clones {
				d.Release()
			}
		}()

		for i, op := range ops {
			switch op % 5 {
			case 0:
				require.NoError(t, c.PushBack(op))
				model = append(model, op)
			case 1:
				k := int(op) % (len(model) + 1)
				require.NoError(t, c.Shrink(k))
				model = model[:len(model)-k]
			case 2:
				require.NoError(t, c.Reserve(int(op)*8))
			case 3:
				d, err := c.Clone()
				require.NoError(t, err)
				clones = append(clones, d)
			case 4:
				require.NoError(t, c.Append(bytes.Repeat([]byte{op}, i*16)))
				model = append(model, bytes.Repeat([]byte{op}, i*16)...)
			}
			require.Equal(t, model, append([]byte{}, c.Data()...))
			require.NoError(t, c.invariants())
		}
	})
}
