package syncx

import (
	"sync"
	"testing"
)

func TestGuardGetSet(t *testing.T) {
	g := NewGuard(10)
	if g.Get() != 10 {
		t.Errorf("Get() = %d, want 10", g.Get())
	}

	g.Set(20)
	if g.Get() != 20 {
		t.Errorf("Get() after Set = %d, want 20", g.Get())
	}
}

func TestGuardSwap(t *testing.T) {
	g := NewGuard("idle")
	old := g.Swap("connecting")

	if old != "idle" {
		t.Errorf("Swap returned %q, want idle", old)
	}
	if g.Get() != "connecting" {
		t.Errorf("Get() = %q, want connecting", g.Get())
	}
}

func TestGuardCompareAndSwap(t *testing.T) {
	eq := func(a, b string) bool { return a == b }
	g := NewGuard("idle")

	if !g.CompareAndSwap("idle", "connecting", eq) {
		t.Error("CAS from matching state should succeed")
	}
	if g.Get() != "connecting" {
		t.Errorf("Get() = %q, want connecting", g.Get())
	}

	if g.CompareAndSwap("idle", "connected", eq) {
		t.Error("CAS from stale state should fail")
	}
	if g.Get() != "connecting" {
		t.Errorf("failed CAS must not mutate, got %q", g.Get())
	}
}

func TestGuardConcurrentAccess(t *testing.T) {
	g := NewGuard(0)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			g.Set(n)
			_ = g.Get()
		}(i)
	}
	wg.Wait()

	v := g.Get()
	if v < 0 || v >= 50 {
		t.Errorf("final value %d out of range", v)
	}
}
