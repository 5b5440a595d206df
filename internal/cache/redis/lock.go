package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// unlockLua deletes the lock only while it still carries the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua pushes the TTL out only while the caller still owns the lock.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockConfig tunes how long Acquire waits for a busy lock.
type LockConfig struct {
	// WaitTimeout bounds how long Acquire retries a held lock; zero fails
	// immediately with ErrLockHeld.
	WaitTimeout time.Duration
	RetryEvery  time.Duration
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// LockManager implements domain.LockManager with SET NX PX, a token-checked
// unlock, and a watchdog that keeps the TTL ahead of long operations.
type LockManager struct {
	c        *Client
	cfg      LockConfig
	unlockSc *redis.Script
	extendSc *redis.Script
}

// NewLockManager creates a LockManager backed by c.
func NewLockManager(c *Client, cfg LockConfig) *LockManager {
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = 50 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &LockManager{
		c:        c,
		cfg:      cfg,
		unlockSc: redis.NewScript(unlockLua),
		extendSc: redis.NewScript(extendLua),
	}
}

// Acquire takes the lock for key, retrying until WaitTimeout elapses. The
// returned unlock is safe to call more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lm.c.key("lock", key)
	deadline := lm.cfg.Clock.Now().Add(lm.cfg.WaitTimeout)

	for {
		ok, err := lm.c.rdb.SetNX(ctx, lk, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if !lm.cfg.Clock.Now().Before(deadline) {
			return nil, fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redis: waiting for lock %s: %w", key, ctx.Err())
		case <-lm.cfg.Clock.After(lm.cfg.RetryEvery):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go lm.watchdog(lk, token, ttl, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lm.unlockSc.Run(unlockCtx, lm.c.rdb, []string{lk}, token).Err(); err != nil {
				lm.cfg.Logger.Warn("lock release failed", slog.String("key", lk), slog.String("error", err.Error()))
			}
		})
	}, nil
}

// watchdog re-arms the TTL at a third of its length until stop closes.
func (lm *LockManager) watchdog(lk, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := lm.cfg.Clock.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			ctx, cancel := context.WithTimeout(context.Background(), ttl/3)
			n, err := lm.extendSc.Run(ctx, lm.c.rdb, []string{lk}, token, ttl.Milliseconds()).Int64()
			cancel()
			if err != nil || n == 0 {
				lm.cfg.Logger.Warn("lock extension failed", slog.String("key", lk), slog.Any("error", err))
			}
		}
	}
}

var _ domain.LockManager = (*LockManager)(nil)
