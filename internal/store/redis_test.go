package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftdraw/auth-bridge/internal/redis"
)

func setupTestRedis(t *testing.T) *RedisStore {
	t.Helper()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}

	client, err := redis.NewClient(url)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.FlushDB(context.Background()).Err())

	return NewRedisStore(client)
}

func TestRedisStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := setupTestRedis(t)

	t.Run("created token is readable and unattached", func(t *testing.T) {
		rec, err := s.Create(ctx, "tok1", 10*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "tok1", rec.Token)

		got, err := s.Get(ctx, "tok1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "tok1", got.Token)
		assert.Nil(t, got.TelegramID)
		assert.False(t, got.Attached())
	})

	t.Run("unknown token is nil", func(t *testing.T) {
		got, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestRedisStoreAttach(t *testing.T) {
	ctx := context.Background()
	identity := Identity{TelegramID: 100, Username: strPtr("alice"), FirstName: strPtr("Alice")}

	t.Run("attach binds the identity", func(t *testing.T) {
		s := setupTestRedis(t)
		_, err := s.Create(ctx, "tok1", 10*time.Minute)
		require.NoError(t, err)

		outcome, err := s.Attach(ctx, "tok1", identity)
		require.NoError(t, err)
		assert.Equal(t, AttachOK, outcome)

		got, err := s.Get(ctx, "tok1")
		require.NoError(t, err)
		require.NotNil(t, got.TelegramID)
		assert.Equal(t, int64(100), *got.TelegramID)
		assert.Equal(t, "alice", *got.Username)

		tok, err := s.FindByTelegramID(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, "tok1", tok)
	})

	t.Run("attach to unknown token reports not found", func(t *testing.T) {
		s := setupTestRedis(t)

		outcome, err := s.Attach(ctx, "missing", identity)
		require.NoError(t, err)
		assert.Equal(t, AttachNotFound, outcome)
	})

	t.Run("same identity twice is idempotent", func(t *testing.T) {
		s := setupTestRedis(t)
		_, err := s.Create(ctx, "tok1", 10*time.Minute)
		require.NoError(t, err)

		_, err = s.Attach(ctx, "tok1", identity)
		require.NoError(t, err)

		outcome, err := s.Attach(ctx, "tok1", identity)
		require.NoError(t, err)
		assert.Equal(t, AttachIdempotent, outcome)
	})

	t.Run("different identity overwrites, last pairing wins", func(t *testing.T) {
		s := setupTestRedis(t)
		_, err := s.Create(ctx, "tok1", 10*time.Minute)
		require.NoError(t, err)

		_, err = s.Attach(ctx, "tok1", identity)
		require.NoError(t, err)

		other := Identity{TelegramID: 200, Username: strPtr("bob")}
		outcome, err := s.Attach(ctx, "tok1", other)
		require.NoError(t, err)
		assert.Equal(t, AttachReplaced, outcome)

		got, err := s.Get(ctx, "tok1")
		require.NoError(t, err)
		assert.Equal(t, int64(200), *got.TelegramID)
		assert.Equal(t, "bob", *got.Username)

		// The replaced identity loses its reverse index entry.
		tok, err := s.FindByTelegramID(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, tok)

		tok, err = s.FindByTelegramID(ctx, 200)
		require.NoError(t, err)
		assert.Equal(t, "tok1", tok)
	})
}

func TestRedisStoreConsume(t *testing.T) {
	ctx := context.Background()
	s := setupTestRedis(t)

	t.Run("consume deletes the token and its reverse entry", func(t *testing.T) {
		_, err := s.Create(ctx, "tok1", 10*time.Minute)
		require.NoError(t, err)
		_, err = s.Attach(ctx, "tok1", Identity{TelegramID: 100})
		require.NoError(t, err)

		ok, err := s.Consume(ctx, "tok1")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.Get(ctx, "tok1")
		require.NoError(t, err)
		assert.Nil(t, got)

		tok, err := s.FindByTelegramID(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, tok)
	})

	t.Run("consume of missing token reports false", func(t *testing.T) {
		ok, err := s.Consume(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRedisStoreFindUnattached(t *testing.T) {
	ctx := context.Background()
	s := setupTestRedis(t)

	t.Run("returns the latest unattached token and skips attached ones", func(t *testing.T) {
		_, err := s.Create(ctx, "older", 10*time.Minute)
		require.NoError(t, err)
		_, err = s.Create(ctx, "newer", 11*time.Minute)
		require.NoError(t, err)

		tok, err := s.FindUnattached(ctx)
		require.NoError(t, err)
		assert.Equal(t, "newer", tok)

		_, err = s.Attach(ctx, "newer", Identity{TelegramID: 100})
		require.NoError(t, err)

		tok, err = s.FindUnattached(ctx)
		require.NoError(t, err)
		assert.Equal(t, "older", tok)
	})
}

func TestRedisStoreCleanup(t *testing.T) {
	ctx := context.Background()
	s := setupTestRedis(t)

	_, err := s.Create(ctx, "gone", 50*time.Millisecond)
	require.NoError(t, err)
	_, err = s.Create(ctx, "live", 10*time.Minute)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	pruned, err := s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	got, err := s.Get(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.Get(ctx, "live")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
