package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisKV, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	kv, err := OpenRedis(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv, mr
}

func TestRedisKV(t *testing.T) {
	kv, mr := newTestRedis(t)
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := kv.Exists(ctx, "42:status")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "42:status", "3"))
	ok, err = kv.Exists(ctx, "42:status")
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := kv.Get(ctx, "42:status")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
	assert.Zero(t, mr.TTL("42:status"))

	require.NoError(t, kv.SetEx(ctx, "42:language", LanguageTTL, "it"))
	assert.Equal(t, LanguageTTL, mr.TTL("42:language"))

	mr.FastForward(LanguageTTL + time.Second)
	_, err = kv.Get(ctx, "42:language")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenRedisURL(t *testing.T) {
	mr := miniredis.RunT(t)
	kv, err := OpenRedis(context.Background(), "redis://"+mr.Addr()+"/0", "", 0)
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Set(context.Background(), "offset", "7"))
	got, err := mr.Get("offset")
	require.NoError(t, err)
	assert.Equal(t, "7", got)
}

func TestOpenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := OpenRedis(ctx, addr, "", 0)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ping", se.Op)
}

func TestRedisBackedStores(t *testing.T) {
	kv, _ := newTestRedis(t)
	ctx := context.Background()

	status, err := NewStatusStore(kv)
	require.NoError(t, err)
	got, err := status.GetStatus(ctx, 5, DefaultStatus)
	require.NoError(t, err)
	assert.Equal(t, -1, got)
	raw, err := kv.Get(ctx, "5:status")
	require.NoError(t, err)
	assert.Equal(t, "-1", raw)

	offsets, err := NewKVOffsetStore(kv, "")
	require.NoError(t, err)
	require.NoError(t, offsets.SaveOffset(ctx, 103))
	offset, err := offsets.LoadOffset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(103), offset)
}
