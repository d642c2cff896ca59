package queue

import (
	"sync"
	"testing"
)

func TestSPSCBasic(t *testing.T) {
	q := NewSPSC[int](8) // rounds to 8, usable = 7
	if q.Capacity() != 8 {
		t.Fatalf("capacity = %d, want 8", q.Capacity())
	}

	for i := 0; i < 7; i++ {
		if !q.TryPush(i) {
			t.Fatalf("push %d should have succeeded", i)
		}
	}
	if q.TryPush(99) {
		t.Fatalf("8th push should fail (capacity-1 sentinel)")
	}
	if q.DroppedCount() != 1 {
		t.Fatalf("dropped = %d, want 1", q.DroppedCount())
	}

	v, ok := q.TryPop()
	if !ok || v != 0 {
		t.Fatalf("pop = %d,%v want 0,true", v, ok)
	}
	if !q.TryPush(100) {
		t.Fatalf("push after one pop should succeed")
	}
	if q.DroppedCount() != 1 {
		t.Fatalf("dropped should remain 1 after reopening a slot")
	}
}

func TestSPSCFIFOOrder(t *testing.T) {
	q := NewSPSC[int](16)
	for i := 0; i < 10; i++ {
		q.TryPush(i)
	}
	for i := 0; i < 10; i++ {
		v, ok := q.TryPop()
		if !ok || v != i {
			t.Fatalf("pop %d = %d,%v, want %d,true", i, v, ok, i)
		}
	}
}

func TestSPSCConservation(t *testing.T) {
	q := NewSPSC[int](1024)
	var wg sync.WaitGroup
	const n = 5000
	pushed := 0
	for i := 0; i < n; i++ {
		if q.TryPush(i) {
			pushed++
		}
	}
	wg.Wait()

	popped := 0
	for {
		_, ok := q.TryPop()
		if !ok {
			break
		}
		popped++
	}
	if popped != pushed {
		t.Fatalf("popped %d != pushed %d", popped, pushed)
	}
	if pushed+int(q.DroppedCount()) != n {
		t.Fatalf("pushed(%d)+dropped(%d) != attempted(%d)", pushed, q.DroppedCount(), n)
	}
}

func TestMPSCConcurrentProducers(t *testing.T) {
	q := NewMPSC[int](4096)
	const producers = 8
	const perProducer = 2000

	var wg sync.WaitGroup
	var pushedOK atomic64Counter

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if q.TryPush(base*perProducer + i) {
					pushedOK.add(1)
				}
			}
		}(p)
	}
	wg.Wait()

	popped := 0
	seen := make(map[int]bool, producers*perProducer)
	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		popped++
		if seen[v] {
			t.Fatalf("duplicate item %d observed", v)
		}
		seen[v] = true
	}

	if popped != int(pushedOK.get()) {
		t.Fatalf("popped %d != pushed %d", popped, pushedOK.get())
	}
}

// atomic64Counter is a tiny test-local counter; avoids importing
// sync/atomic directly in the test for a terser call-site.
type atomic64Counter struct {
	mu sync.Mutex
	n  uint64
}

func (c *atomic64Counter) add(d uint64) {
	c.mu.Lock()
	c.n += d
	c.mu.Unlock()
}

func (c *atomic64Counter) get() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
