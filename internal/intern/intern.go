// Package intern deduplicates strings that are learned repeatedly, such as
// the metric names a node republishes on every birth.
package intern

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// Pool interns strings. It uses sync.Map for lock-free concurrent reads.
type Pool struct {
	strings sync.Map
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// NewPool creates a new intern pool.
func NewPool() *Pool {
	return &Pool{}
}

// Intern returns an interned copy of s.
func (p *Pool) Intern(s string) string {
	if interned, ok := p.strings.Load(s); ok {
		p.hits.Add(1)
		return interned.(string)
	}
	return p.store(string([]byte(s)))
}

// InternBytes interns a string from a byte slice without allocating
// an intermediate string for the lookup.
func (p *Pool) InternBytes(b []byte) string {
	if interned, ok := p.strings.Load(unsafeString(b)); ok {
		p.hits.Add(1)
		return interned.(string)
	}
	return p.store(string(b))
}

func (p *Pool) store(clone string) string {
	actual, loaded := p.strings.LoadOrStore(clone, clone)
	if loaded {
		p.hits.Add(1)
	} else {
		p.misses.Add(1)
	}
	return actual.(string)
}

// Stats returns hit/miss statistics.
func (p *Pool) Stats() (hits, misses uint64) {
	return p.hits.Load(), p.misses.Load()
}

// Size returns the number of interned strings.
func (p *Pool) Size() int {
	count := 0
	p.strings.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// unsafeString converts b without allocation. The result is only used as a
// map key for lookup and never stored.
func unsafeString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// MetricNames holds the metric names learned from NBIRTH and DBIRTH payloads.
var MetricNames = NewPool()
