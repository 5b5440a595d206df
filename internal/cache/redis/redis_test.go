package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientKeyNamespace(t *testing.T) {
	c := Wrap(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "")
	defer c.Close()
	assert.Equal(t, "raffle:lock:ops", c.key("lock", "ops"))

	c2 := Wrap(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "staging")
	defer c2.Close()
	assert.Equal(t, "staging:stream:events", c2.key("stream", "events"))
}

func TestPayloadBytes(t *testing.T) {
	b, ok := payloadBytes("abc")
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), b)
	_, ok = payloadBytes(42)
	assert.False(t, ok)
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
	assert.Contains(t, slidingWindowLua, "PEXPIRE")
}

func TestLockManager_UnreachableServer(t *testing.T) {
	c := Wrap(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond}), "")
	defer c.Close()
	lm := NewLockManager(c, LockConfig{})

	_, err := lm.Acquire(context.Background(), "ops", time.Second)
	require.Error(t, err)
}

func TestReplayGuard_UnreachableServer(t *testing.T) {
	c := Wrap(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond}), "")
	defer c.Close()

	ok, err := NewReplayGuard(c).Claim(context.Background(), "sig", time.Minute)
	require.Error(t, err)
	assert.False(t, ok)
}
