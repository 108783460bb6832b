package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisRepository_SaveGetDelete(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	repo := NewRedisRepository(client, "test:session:")

	ctx := context.Background()
	s := &Session{
		TerminalKey:  "bar-1",
		UserID:       "user-1",
		Email:        "ana@bar.test",
		AccessToken:  "at",
		RefreshToken: "rt",
		Metadata:     map[string]string{"full_name": "Ana"},
		ExpiresAt:    time.Now().UTC().Add(5 * time.Second),
	}

	require.NoError(t, repo.Save(ctx, s))
	require.True(t, m.Exists("test:session:bar-1"))

	got, err := repo.Get(ctx, "bar-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, s.UserID, got.UserID)
	require.Equal(t, "Ana", got.Metadata["full_name"])

	// test deletion
	require.NoError(t, repo.Delete(ctx, "bar-1"))
	got2, err := repo.Get(ctx, "bar-1")
	require.NoError(t, err)
	require.Nil(t, got2)
}

func TestRedisRepository_TTLExpiry(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	repo := NewRedisRepository(client, "")

	ctx := context.Background()
	s := &Session{
		TerminalKey: "bar-2",
		UserID:      "user-2",
		ExpiresAt:   time.Now().UTC().Add(1 * time.Second),
	}

	require.NoError(t, repo.Save(ctx, s))

	// visible immediately
	got, err := repo.Get(ctx, "bar-2")
	require.NoError(t, err)
	require.NotNil(t, got)

	// advance miniredis clock past TTL
	m.FastForward(2 * time.Second)

	got2, err := repo.Get(ctx, "bar-2")
	require.NoError(t, err)
	require.Nil(t, got2)
}

func TestRedisRepository_RejectsExpiredSession(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	repo := NewRedisRepository(redis.NewClient(&redis.Options{Addr: m.Addr()}), "")
	err = repo.Save(context.Background(), &Session{TerminalKey: "bar-3", ExpiresAt: time.Now().Add(-time.Minute)})
	require.ErrorIs(t, err, ErrSessionExpired)
	require.False(t, m.Exists("session:bar-3"))
}

func TestRedisRepository_CorruptValue(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Set("session:bar-4", "{not json"))
	repo := NewRedisRepository(redis.NewClient(&redis.Options{Addr: m.Addr()}), "")
	_, err = repo.Get(context.Background(), "bar-4")
	require.ErrorContains(t, err, "decode session bar-4")
}
