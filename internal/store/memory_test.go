package store

import (
	"context"
	"testing"
	"time"
)

func TestMemory_SessionRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, ok, err := m.GetSession(ctx, "s1"); err != nil || ok {
		t.Fatalf("expected absent session, ok=%v err=%v", ok, err)
	}
	if err := m.PutSession(ctx, "s1", []byte(`{"a":1}`), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	b, ok, err := m.GetSession(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(b) != `{"a":1}` {
		t.Fatalf("unexpected value %q", b)
	}
}

func TestMemory_SessionExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()
	m.now = func() time.Time { return base }
	if err := m.PutSession(ctx, "s1", []byte("x"), time.Second); err != nil {
		t.Fatalf("put: %v", err)
	}
	m.now = func() time.Time { return base.Add(2 * time.Second) }
	if _, ok, err := m.GetSession(ctx, "s1"); err != nil || ok {
		t.Fatalf("expected expired session to be absent, ok=%v err=%v", ok, err)
	}
}

func TestMemory_LeaseCapacity(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ok, err := m.AcquireLease(ctx, "k", "a", 2, time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire a: ok=%v err=%v", ok, err)
	}
	ok, _ = m.AcquireLease(ctx, "k", "b", 2, time.Minute)
	if !ok {
		t.Fatalf("acquire b should succeed")
	}
	ok, _ = m.AcquireLease(ctx, "k", "c", 2, time.Minute)
	if ok {
		t.Fatalf("acquire c should be rejected at capacity")
	}
	if n, _ := m.CountLeases(ctx, "k"); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestMemory_ReleaseIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if ok, _ := m.AcquireLease(ctx, "k", "a", 1, time.Minute); !ok {
		t.Fatalf("acquire failed")
	}
	removed, err := m.ReleaseLease(ctx, "k", "a")
	if err != nil || !removed {
		t.Fatalf("first release: removed=%v err=%v", removed, err)
	}
	removed, err = m.ReleaseLease(ctx, "k", "a")
	if err != nil || removed {
		t.Fatalf("second release should be a no-op, removed=%v err=%v", removed, err)
	}
	if n, _ := m.CountLeases(ctx, "k"); n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}

func TestMemory_AcquireReapsExpired(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()
	m.now = func() time.Time { return base }
	if ok, _ := m.AcquireLease(ctx, "k", "stale", 1, time.Second); !ok {
		t.Fatalf("acquire stale failed")
	}
	// Capacity is full until the stale lease expires.
	if ok, _ := m.AcquireLease(ctx, "k", "fresh", 1, time.Minute); ok {
		t.Fatalf("acquire fresh should be rejected while stale is live")
	}
	m.now = func() time.Time { return base.Add(2 * time.Second) }
	ok, err := m.AcquireLease(ctx, "k", "fresh", 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire after expiry: ok=%v err=%v", ok, err)
	}
}

func TestMemory_ReapExpiredCount(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()
	m.now = func() time.Time { return base }
	m.AcquireLease(ctx, "k", "a", 3, time.Second)
	m.AcquireLease(ctx, "k", "b", 3, time.Second)
	m.AcquireLease(ctx, "k", "c", 3, time.Hour)
	m.now = func() time.Time { return base.Add(2 * time.Second) }
	n, err := m.ReapExpired(ctx, "k")
	if err != nil || n != 2 {
		t.Fatalf("reaped %d err=%v, want 2", n, err)
	}
	if n, _ := m.CountLeases(ctx, "k"); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}
