package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(size int, ttl time.Duration, sliding bool) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.sliding = sliding
	c.now = clock.now
	return c, clock
}

func TestLRUCache_GetSet(t *testing.T) {
	c, _ := newTestCache(2, time.Minute, false)

	c.Set("a", "1")
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("Get(missing) should miss")
	}

	c.Set("a", "2")
	if v, _ := c.Get("a"); v != "2" {
		t.Fatalf("overwrite: Get(a) = %q", v)
	}
	if c.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", c.Size())
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute, false)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should survive, it was used recently")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be present")
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clock := newTestCache(10, time.Minute, false)

	c.Set("a", "1")
	clock.advance(30 * time.Second)
	c.Get("a")
	clock.advance(31 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Fatal("fixed TTL entry should expire regardless of hits")
	}
}

func TestLRUCache_SlidingExpiry(t *testing.T) {
	c, clock := newTestCache(10, time.Minute, true)

	c.Set("a", "1")
	for i := 0; i < 3; i++ {
		clock.advance(45 * time.Second)
		if _, ok := c.Get("a"); !ok {
			t.Fatalf("hit %d: sliding entry expired early", i)
		}
	}
	clock.advance(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("idle sliding entry should expire")
	}
}

func TestLRUCache_GetOrCreate(t *testing.T) {
	c, _ := newTestCache(10, time.Minute, true)

	calls := 0
	create := func() string { calls++; return "session" }

	v, existed := c.GetOrCreate("id", create)
	if existed || v != "session" {
		t.Fatalf("first GetOrCreate = %q, %v", v, existed)
	}
	v, existed = c.GetOrCreate("id", create)
	if !existed || v != "session" || calls != 1 {
		t.Fatalf("second GetOrCreate = %q, %v, calls=%d", v, existed, calls)
	}
}

func TestLRUCache_CleanExpired(t *testing.T) {
	c, clock := newTestCache(10, time.Minute, false)

	c.Set("a", "1")
	clock.advance(2 * time.Minute)
	c.Set("b", "2")

	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", c.Size())
	}
}

func TestManager(t *testing.T) {
	c, clock := newTestCache(10, time.Minute, false)
	c.Set("a", "1")
	clock.advance(2 * time.Minute)

	m := NewManager()
	m.Register(c)
	if n := m.CleanNow(); n != 1 {
		t.Fatalf("CleanNow() = %d, want 1", n)
	}

	m.StartCleanup(time.Hour)
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}

func TestManager_StopWithoutStart(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewManager().Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a manager that never started")
	}
}
