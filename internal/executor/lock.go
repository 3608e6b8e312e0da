package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// TradeLock admits at most one trade at a time. It never queues: a caller
// that cannot acquire it immediately is expected to drop its work.
//
// When a distributed LockManager is attached the lock is also taken there, so
// several processes sharing the same wallets still trade one at a time.
type TradeLock struct {
	sem chan struct{}

	dist   domain.LockManager
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewTradeLock returns a process-local trade lock.
func NewTradeLock() *TradeLock {
	return &TradeLock{sem: make(chan struct{}, 1)}
}

// WithDistributed additionally guards the lock with lm under key. ttl must
// outlive the longest trade, including its hold period.
func (l *TradeLock) WithDistributed(lm domain.LockManager, key string, ttl time.Duration, logger *slog.Logger) *TradeLock {
	l.dist = lm
	l.key = key
	l.ttl = ttl
	l.logger = logger.With(slog.String("component", "trade_lock"))
	return l
}

// TryAcquire takes the lock if it is free. The returned release func is safe
// to call more than once. A distributed lock backend that cannot be reached
// counts as held.
func (l *TradeLock) TryAcquire(ctx context.Context) (release func(), ok bool) {
	select {
	case l.sem <- struct{}{}:
	default:
		return nil, false
	}

	unlockDist := func() {}
	if l.dist != nil {
		unlock, err := l.dist.Acquire(ctx, l.key, l.ttl)
		if err != nil {
			if !errors.Is(err, domain.ErrLockHeld) {
				l.logger.WarnContext(ctx, "distributed trade lock unavailable",
					slog.String("key", l.key),
					slog.String("error", err.Error()),
				)
			}
			<-l.sem
			return nil, false
		}
		unlockDist = unlock
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockDist()
			<-l.sem
		})
	}, true
}

// Held reports whether a trade currently holds the local lock.
func (l *TradeLock) Held() bool {
	return len(l.sem) > 0
}
