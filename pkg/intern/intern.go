// Package intern deduplicates long strings. Interning the same bytes twice
// yields two cores backed by one shared block, so a table of repeated keys
// or paths costs one copy of each distinct value.
package intern

import (
	"bytes"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cespare/xxhash/v2"

	"github.com/rawbytedev/strcore"
)

// Stats is a point in time view of a Pool.
type Stats struct {
	Hits     int64 // lookups answered by an existing entry
	Misses   int64 // lookups that added an entry
	Bypassed int64 // strings too short to be worth sharing
	Entries  int
}

// Pool holds one canonical core per distinct long string. Strings of at most
// strcore.MaxMedium bytes are never shared by a core, so they are copied
// instead of interned. A Pool is safe for concurrent use.
type Pool struct {
	mu      sync.RWMutex
	buckets map[uint64][]*strcore.Core
	entries int

	hits     atomic.Int64
	misses   atomic.Int64
	bypassed atomic.Int64
}

func NewPool() *Pool {
	return &Pool{buckets: make(map[uint64][]*strcore.Core)}
}

// Intern returns a core holding b. The caller owns it and must Release it.
func (p *Pool) Intern(b []byte) (*strcore.Core, error) {
	if len(b) <= strcore.MaxMedium {
		p.bypassed.Add(1)
		return strcore.New(b)
	}
	key := xxhash.Sum64(b)

	p.mu.RLock()
	if c := find(p.buckets[key], b); c != nil {
		defer p.mu.RUnlock()
		p.hits.Add(1)
		return c.Clone()
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if c := find(p.buckets[key], b); c != nil {
		p.hits.Add(1)
		return c.Clone()
	}
	c, err := strcore.New(b)
	if err != nil {
		return nil, err
	}
	out, err := c.Clone()
	if err != nil {
		c.Release()
		return nil, err
	}
	p.buckets[key] = append(p.buckets[key], c)
	p.entries++
	p.misses.Add(1)
	return out, nil
}

// InternString is Intern for string input.
func (p *Pool) InternString(s string) (*strcore.Core, error) {
	return p.Intern(unsafe.Slice(unsafe.StringData(s), len(s)))
}

func find(bucket []*strcore.Core, b []byte) *strcore.Core {
	for _, c := range bucket {
		if bytes.Equal(c.Data(), b) {
			return c
		}
	}
	return nil
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	n := p.entries
	p.mu.RUnlock()
	return Stats{
		Hits:     p.hits.Load(),
		Misses:   p.misses.Load(),
		Bypassed: p.bypassed.Load(),
		Entries:  n,
	}
}

// Release drops the pool's reference to every entry. Cores handed out by
// Intern stay valid until their owners release them.
func (p *Pool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, bucket := range p.buckets {
		for _, c := range bucket {
			c.Release()
		}
		delete(p.buckets, key)
	}
	p.entries = 0
}
