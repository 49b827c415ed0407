package intern

import (
	"sync"
	"testing"
	"unsafe"
)

func TestPool_Intern(t *testing.T) {
	p := NewPool()
	a := p.Intern("Node Control/Rebirth")
	b := p.Intern(string([]byte("Node Control/Rebirth")))
	if unsafe.StringData(a) != unsafe.StringData(b) {
		t.Error("Intern() returned distinct copies for equal strings")
	}
	hits, misses := p.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("Stats() = %d, %d, want 1, 1", hits, misses)
	}
	if p.Size() != 1 {
		t.Errorf("Size() = %d, want 1", p.Size())
	}
}

func TestPool_InternBytes(t *testing.T) {
	p := NewPool()
	buf := []byte("temperature")
	s := p.InternBytes(buf)
	buf[0] = 'T'
	if s != "temperature" {
		t.Errorf("interned string changed with its source buffer: %q", s)
	}
	if got := p.InternBytes([]byte("temperature")); unsafe.StringData(got) != unsafe.StringData(s) {
		t.Error("InternBytes() missed an interned string")
	}
	if got := p.InternBytes(nil); got != "" {
		t.Errorf("InternBytes(nil) = %q", got)
	}
}

func TestPool_Concurrent(t *testing.T) {
	p := NewPool()
	names := []string{"a", "b", "c", "d"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				p.Intern(names[j%len(names)])
			}
		}()
	}
	wg.Wait()
	hits, misses := p.Stats()
	if misses != uint64(len(names)) || hits+misses != 8000 {
		t.Errorf("Stats() = %d, %d", hits, misses)
	}
}
