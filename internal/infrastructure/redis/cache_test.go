package redis_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/scripture-cache/internal/infrastructure/redis"
)

func newStore(t *testing.T) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewStore(client, redis.StoreOptions{Prefix: "sc", BreakerFailures: 2, BreakerTimeout: time.Minute}), mr
}

func TestStore_GetSetExpire(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "verse:KJV:GEN:1:1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "verse:KJV:GEN:1:1", []byte("In the beginning"), time.Second))
	require.True(t, mr.Exists("sc:verse:KJV:GEN:1:1"))

	b, ok, err := s.Get(ctx, "verse:KJV:GEN:1:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "In the beginning", string(b))

	mr.FastForward(2 * time.Second)
	_, ok, err = s.Get(ctx, "verse:KJV:GEN:1:1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_DefaultTTL(t *testing.T) {
	s, mr := newStore(t)
	require.NoError(t, s.Set(context.Background(), "k", []byte("v"), 0))
	require.Equal(t, 5*time.Minute, mr.TTL("sc:k"))
}

func TestStore_PrefixSeparatorIsNotDoubled(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := redis.NewStore(client, redis.StoreOptions{Prefix: "scripture-cache:"})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ratelimit:general:anonymous", []byte("w"), time.Minute))
	require.True(t, mr.Exists("scripture-cache:ratelimit:general:anonymous"))
	require.False(t, mr.Exists("scripture-cache::ratelimit:general:anonymous"))

	keys, err := s.Scan(ctx, "ratelimit:*")
	require.NoError(t, err)
	require.Equal(t, []string{"ratelimit:general:anonymous"}, keys)
}

func TestStore_DeleteKeyAndPattern(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	for _, k := range []string{"verse:KJV:GEN:1:1", "verse:KJV:GEN:1:2", "verse:KJV:EXO:1:1", "chapter:KJV:GEN:1"} {
		require.NoError(t, s.Set(ctx, k, []byte("x"), time.Minute))
	}
	require.NoError(t, mr.Set("other:verse:KJV:GEN:9:9", "untouched"))

	n, err := s.Delete(ctx, "verse:KJV:EXO:1:1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.Delete(ctx, "verse:KJV:EXO:1:1")
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.Delete(ctx, "verse:*")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	keys, err := s.Scan(ctx, "*")
	require.NoError(t, err)
	require.Equal(t, []string{"chapter:KJV:GEN:1"}, keys)
	require.True(t, mr.Exists("other:verse:KJV:GEN:9:9"))
}

func TestStore_ScanEscapesGlobCharacters(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "search:[a]", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "search:a", []byte("2"), time.Minute))

	keys, err := s.Scan(ctx, "search:[a]*")
	require.NoError(t, err)
	require.Equal(t, []string{"search:[a]"}, keys)

	keys, err = s.Scan(ctx, "search:*")
	require.NoError(t, err)
	sort.Strings(keys)
	require.Equal(t, []string{"search:[a]", "search:a"}, keys)
}

func TestStore_GuardOpensWhenRedisIsDown(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	mr.Close()

	for i := 0; i < 2; i++ {
		_, _, err := s.Get(ctx, "k")
		require.Error(t, err)
	}
	require.Equal(t, "open", s.GuardState())

	_, _, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}
