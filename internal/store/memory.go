package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. It is safe for concurrent use but shares
// nothing across processes; deployments running more than one gateway
// worker must use Redis.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]memEntry
	leases   map[string]map[string]time.Time
	now      func() time.Time
}

type memEntry struct {
	val      []byte
	deadline time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]memEntry),
		leases:   make(map[string]map[string]time.Time),
		now:      time.Now,
	}
}

func (m *Memory) GetSession(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[key]
	if !ok {
		return nil, false, nil
	}
	if !e.deadline.IsZero() && m.now().After(e.deadline) {
		delete(m.sessions, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, true, nil
}

func (m *Memory) PutSession(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memEntry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.deadline = m.now().Add(ttl)
	}
	m.sessions[key] = e
	return nil
}

func (m *Memory) AcquireLease(_ context.Context, key, leaseID string, capacity int, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(key)
	set := m.leases[key]
	if set == nil {
		set = make(map[string]time.Time)
		m.leases[key] = set
	}
	if len(set) >= capacity {
		return false, nil
	}
	set[leaseID] = m.now().Add(ttl)
	return true, nil
}

func (m *Memory) ReleaseLease(_ context.Context, key, leaseID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.leases[key]
	if set == nil {
		return false, nil
	}
	if _, ok := set[leaseID]; !ok {
		return false, nil
	}
	delete(set, leaseID)
	return true, nil
}

func (m *Memory) ReapExpired(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked(key), nil
}

func (m *Memory) CountLeases(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(key)
	return len(m.leases[key]), nil
}

func (m *Memory) pruneLocked(key string) int {
	set := m.leases[key]
	if set == nil {
		return 0
	}
	now := m.now()
	n := 0
	for id, deadline := range set {
		if now.After(deadline) {
			delete(set, id)
			n++
		}
	}
	return n
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
