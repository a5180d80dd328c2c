package cache

import "testing"

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	pool := NewBufferPool(10)
	c := New(2, pool)

	c.Set(1, pool.Acquire())
	c.Set(2, pool.Acquire())
	if _, ok := c.Get(1); !ok {
		t.Fatalf("expected hit for page 1")
	}
	// Touching 1 makes 2 the LRU entry; inserting 3 should evict 2.
	c.Set(3, pool.Acquire())

	if _, ok := c.Get(2); ok {
		t.Fatalf("expected page 2 to be evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Fatalf("expected page 1 to survive eviction")
	}
	if _, ok := c.Get(3); !ok {
		t.Fatalf("expected page 3 present")
	}

	stats := c.Stats()
	if stats.Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", stats.Evictions)
	}
}

func TestDeleteInvalidatesAndReleasesToPool(t *testing.T) {
	pool := NewBufferPool(10)
	c := New(5, pool)

	buf := pool.Acquire()
	c.Set(1, buf)
	c.Delete(1)

	if _, ok := c.Get(1); ok {
		t.Fatalf("expected entry to be invalidated")
	}
	if pool.Stats().Reuses == 0 {
		// Acquire a new buffer; it should come from the pool we just released to.
		pool.Acquire()
		if pool.Stats().Reuses == 0 {
			t.Fatalf("expected released buffer to be reused")
		}
	}
}

func TestBufferPoolCapacityDiscardsOverflow(t *testing.T) {
	pool := NewBufferPool(1)
	a := pool.Acquire()
	b := pool.Acquire()
	pool.Release(a)
	pool.Release(b) // discarded, pool already at capacity

	if got := len(pool.free); got != 1 {
		t.Fatalf("expected pool to hold 1 buffer, got %d", got)
	}
}

func TestAcquireReturnsZeroedBuffer(t *testing.T) {
	pool := NewBufferPool(2)
	buf := pool.Acquire()
	for i := range buf {
		buf[i] = 0xFF
	}
	pool.Release(buf)

	reused := pool.Acquire()
	for i, b := range reused {
		if b != 0 {
			t.Fatalf("expected zeroed buffer at %d, got %x", i, b)
		}
	}
}
