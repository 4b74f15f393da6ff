// Package store abstracts the shared key-value store backing both the
// admission controller's leases and the session transcripts. Two
// implementations exist: Redis for multi-worker deployments and an
// in-memory store for tests and single-process runs.
package store

import (
	"context"
	"time"
)

// Store is the atomic primitive surface the gateway mutates shared state
// through. Lease operations treat a key as a set of lease ids with
// per-lease expiry; acquisition is atomic with respect to capacity.
type Store interface {
	// GetSession returns the raw transcript bytes for key, reporting
	// absence (expired or never written) without an error.
	GetSession(ctx context.Context, key string) ([]byte, bool, error)
	// PutSession overwrites the transcript at key with a fresh TTL.
	PutSession(ctx context.Context, key string, val []byte, ttl time.Duration) error

	// AcquireLease atomically reaps expired leases at key and admits
	// leaseID iff fewer than capacity live leases remain. Returns false
	// without error when the key is at capacity.
	AcquireLease(ctx context.Context, key, leaseID string, capacity int, ttl time.Duration) (bool, error)
	// ReleaseLease removes leaseID from key. Removing an absent lease is
	// a no-op; the bool reports whether anything was removed.
	ReleaseLease(ctx context.Context, key, leaseID string) (bool, error)
	// ReapExpired removes leases whose expiry has passed, returning the
	// number reclaimed.
	ReapExpired(ctx context.Context, key string) (int, error)
	// CountLeases reports the number of live leases at key.
	CountLeases(ctx context.Context, key string) (int, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error
	Close() error
}
