package credentials

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArgon() *cryptox.Argon2id {
	return cryptox.NewArgon2id(cryptox.Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
}

func TestVerify(t *testing.T) {
	var ops []string
	var mu sync.Mutex
	v := NewVerifier(newArgon(), 2, WithObserver(func(op string, _ time.Duration) {
		mu.Lock()
		ops = append(ops, op)
		mu.Unlock()
	}))
	ctx := context.Background()

	digest, err := v.Hash(ctx, "Passw0rd!")
	require.NoError(t, err)
	assert.NotContains(t, digest, "Passw0rd!")

	ok, err := v.Verify(ctx, digest, "Passw0rd!")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(ctx, digest, "passw0rd!")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = v.Verify(ctx, "not-a-digest", "Passw0rd!")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{"hash", "verify", "verify", "verify"}, ops)
}

type blockingHasher struct {
	running atomic.Int32
	peak    atomic.Int32
	release chan struct{}
}

func (b *blockingHasher) Hash(string) (string, error) {
	n := b.running.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-b.release
	b.running.Add(-1)
	return "digest", nil
}

func (b *blockingHasher) Verify(string, string) (bool, error) { return false, errors.New("unused") }

func TestPool_BoundsConcurrency(t *testing.T) {
	h := &blockingHasher{release: make(chan struct{})}
	v := NewVerifier(h, 2)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = v.Hash(context.Background(), "pw")
		}()
	}

	require.Eventually(t, func() bool { return h.running.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(h.release)
	wg.Wait()
	assert.EqualValues(t, 2, h.peak.Load())
}

func TestPool_ContextCancelledWhileQueued(t *testing.T) {
	h := &blockingHasher{release: make(chan struct{})}
	v := NewVerifier(h, 1)

	go func() { _, _ = v.Hash(context.Background(), "pw") }()
	require.Eventually(t, func() bool { return h.running.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := v.Verify(ctx, "d", "pw")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(h.release)
}

func TestNewVerifier_ClampsWorkers(t *testing.T) {
	v := NewVerifier(newArgon(), 0)
	_, err := v.Hash(context.Background(), "pw")
	assert.NoError(t, err)
}
