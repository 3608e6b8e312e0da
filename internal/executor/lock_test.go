package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

type fakeLockManager struct {
	mu       sync.Mutex
	held     bool
	err      error
	released int
}

func (f *fakeLockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.held = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.held = false
		f.released++
	}, nil
}

func TestTradeLockIsExclusive(t *testing.T) {
	l := NewTradeLock()

	release, ok := l.TryAcquire(context.Background())
	require.True(t, ok)
	assert.True(t, l.Held())

	_, ok = l.TryAcquire(context.Background())
	assert.False(t, ok)

	release()
	release()
	assert.False(t, l.Held())

	release2, ok := l.TryAcquire(context.Background())
	require.True(t, ok)
	release2()
}

func TestTradeLockAdmitsOneOfMany(t *testing.T) {
	l := NewTradeLock()
	var (
		wg       sync.WaitGroup
		acquired atomic.Int32
		start    = make(chan struct{})
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := l.TryAcquire(context.Background()); ok {
				acquired.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), acquired.Load())
}

func TestTradeLockDistributed(t *testing.T) {
	lm := &fakeLockManager{}
	l := NewTradeLock().WithDistributed(lm, "trade", time.Hour, discardLogger())

	release, ok := l.TryAcquire(context.Background())
	require.True(t, ok)
	assert.True(t, lm.held)
	release()
	assert.False(t, lm.held)
	assert.Equal(t, 1, lm.released)

	// Another process holds it.
	lm.held = true
	_, ok = l.TryAcquire(context.Background())
	assert.False(t, ok)
	assert.False(t, l.Held())
}

func TestTradeLockDistributedBackendDown(t *testing.T) {
	lm := &fakeLockManager{err: errors.New("connection refused")}
	l := NewTradeLock().WithDistributed(lm, "trade", time.Hour, discardLogger())

	_, ok := l.TryAcquire(context.Background())
	assert.False(t, ok)
	assert.False(t, l.Held())
}
