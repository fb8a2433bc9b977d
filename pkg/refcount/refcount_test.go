package refcount

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rawbytedev/strcore/pkg/alloc"
)

func TestCreateReportsEffectiveCapacity(t *testing.T) {
	c := alloc.NewCounting(nil)
	h, err := Create(c, 100)
	require.NoError(t, err)
	require.GreaterOrEqual(t, h.Capacity(), 100)
	require.Equal(t, c.LiveBytes(), HeaderSize+h.Capacity()+1)
	require.Equal(t, 1, h.Refs())
	require.Len(t, h.Bytes(), h.Capacity()+1)
	require.True(t, h.Release(c))
	require.Zero(t, c.Live())
}

func TestCreateFromCopies(t *testing.T) {
	c := alloc.NewCounting(nil)
	src := []byte("shared bytes")
	h, err := CreateFrom(c, src)
	require.NoError(t, err)
	src[0] = 'X'
	require.Equal(t, []byte("shared bytes"), h.Bytes()[:12])
	h.Release(c)
}

func TestFromDataRecoversHeader(t *testing.T) {
	c := alloc.NewCounting(nil)
	h, err := Create(c, 40)
	require.NoError(t, err)
	again := FromData(h.Data(), h.Capacity())
	again.Retain()
	require.Equal(t, 2, h.Refs())
	require.False(t, h.Release(c))
	require.True(t, again.Release(c))
	require.Zero(t, c.Live())
}

func TestReleasePastZeroPanics(t *testing.T) {
	// poisoning would scribble over the header; use a plain heap
	heap := alloc.NewHeap(alloc.HeapOptions{})
	h, err := Create(heap, 8)
	require.NoError(t, err)
	require.True(t, h.Release(heap))
	require.Panics(t, func() { h.Release(heap) })
}

func TestReallocateKeepsBytesAndCount(t *testing.T) {
	c := alloc.NewCounting(nil)
	h, err := CreateFrom(c, []byte("grow me"))
	require.NoError(t, err)
	h.Bytes()[7] = 0

	nh, err := Reallocate(c, h, 7, 5000)
	require.NoError(t, err)
	require.GreaterOrEqual(t, nh.Capacity(), 5000)
	require.Equal(t, []byte("grow me\x00"), nh.Bytes()[:8])
	require.Equal(t, 1, nh.Refs())
	require.Equal(t, 1, c.Live())
	nh.Release(c)
	require.Zero(t, c.Live())
}

func TestReallocateSharedPanics(t *testing.T) {
	c := alloc.NewCounting(nil)
	h, err := Create(c, 64)
	require.NoError(t, err)
	h.Retain()
	require.Panics(t, func() { _, _ = Reallocate(c, h, 0, 1000) })
	h.Release(c)
	h.Release(c)
}

func TestReallocateOutOfMemory(t *testing.T) {
	heap := alloc.NewHeap(alloc.HeapOptions{Limit: 512})
	h, err := Create(heap, 100)
	require.NoError(t, err)
	_, err = Reallocate(heap, h, 10, 4096)
	require.ErrorIs(t, err, alloc.ErrOutOfMemory)
	require.Equal(t, 1, h.Refs())
}

func TestConcurrentRetainRelease(t *testing.T) {
	c := alloc.NewCounting(nil)
	h, err := Create(c, 512)
	require.NoError(t, err)

	const workers = 16
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for j := 0; j < 1000; j++ {
				h.Retain()
				h.Release(c)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 1, h.Refs())
	require.True(t, h.Release(c))
	require.Zero(t, c.Live())
}
