// Package credentials checks and produces password digests on a bounded
// worker pool so that slow key derivation cannot starve other requests.
package credentials

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Hasher is implemented by cryptox.Argon2id.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(encoded, password string) (bool, error)
}

// Observer receives the wall time of each hash ("hash") or verify ("verify")
// call, including the wait for a worker slot.
type Observer func(op string, d time.Duration)

type Verifier struct {
	hasher  Hasher
	sem     *semaphore.Weighted
	observe Observer
}

type Option func(*Verifier)

func WithObserver(o Observer) Option {
	return func(v *Verifier) { v.observe = o }
}

// NewVerifier runs at most workers hash computations at once.
func NewVerifier(h Hasher, workers int, opts ...Option) *Verifier {
	if workers < 1 {
		workers = 1
	}
	v := &Verifier{
		hasher:  h,
		sem:     semaphore.NewWeighted(int64(workers)),
		observe: func(string, time.Duration) {},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Hash returns the digest of password. The only errors are ctx expiring
// while queued and a failure of the random source.
func (v *Verifier) Hash(ctx context.Context, password string) (string, error) {
	start := time.Now()
	if err := v.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer func() {
		v.sem.Release(1)
		v.observe("hash", time.Since(start))
	}()
	return v.hasher.Hash(password)
}

// Verify reports whether plaintext matches storedDigest. A malformed digest
// simply does not match. The error is non-nil only when ctx ends first.
func (v *Verifier) Verify(ctx context.Context, storedDigest, plaintext string) (bool, error) {
	start := time.Now()
	if err := v.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer func() {
		v.sem.Release(1)
		v.observe("verify", time.Since(start))
	}()
	ok, err := v.hasher.Verify(storedDigest, plaintext)
	return ok && err == nil, nil
}
