package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintKeys(t *testing.T) {
	tests := []struct {
		name string
		fp   Fingerprint
		want []string
	}{
		{
			name: "ip only",
			fp:   Fingerprint{ProductID: "12", IP: "1.2.3.4"},
			want: []string{"ip:1.2.3.4:12"},
		},
		{
			name: "every identifier",
			fp:   Fingerprint{ProductID: "7", IP: "1.1.1.1", Fbc: "fb.1.x", Fbp: "fb.1.y", Gclid: "g", Wbraid: "w", Gbraid: "b"},
			want: []string{"ip:1.1.1.1:7", "fbc:fb.1.x:7", "fbp:fb.1.y:7", "gclid:g:7", "wbraid:w:7", "gbraid:b:7"},
		},
		{
			name: "blank values skipped",
			fp:   Fingerprint{ProductID: "7", Fbc: "  "},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fp.Keys())
		})
	}
}

func exerciseCache(t *testing.T, cache Cache) {
	t.Helper()
	ctx := context.Background()

	_, hit, err := cache.Lookup(ctx, []string{"ip:1.1.1.1:7"})
	require.NoError(t, err)
	assert.False(t, hit)

	entry := Entry{TrackingID: "site-a-20", TrackingDocID: "doc-a"}
	require.NoError(t, cache.Record(ctx, []string{"ip:1.1.1.1:7", "fbc:x:7"}, entry))

	got, hit, err := cache.Lookup(ctx, []string{"ip:9.9.9.9:7", "fbc:x:7"})
	require.NoError(t, err)
	assert.True(t, hit, "a hit on any key is a repeat")
	assert.Equal(t, entry, got)

	_, hit, err = cache.Lookup(ctx, []string{"ip:1.1.1.1:8"})
	require.NoError(t, err)
	assert.False(t, hit, "other products are not repeats")
}

func TestLRUCache(t *testing.T) {
	exerciseCache(t, NewLRUCache(10, time.Hour))
}

func TestLRUCacheEvictsByCapacity(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(2, time.Hour)

	require.NoError(t, cache.Record(ctx, []string{"a"}, Entry{TrackingID: "a"}))
	require.NoError(t, cache.Record(ctx, []string{"b"}, Entry{TrackingID: "b"}))
	require.NoError(t, cache.Record(ctx, []string{"c"}, Entry{TrackingID: "c"}))

	assert.Equal(t, 2, cache.Len())
	_, hit, _ := cache.Lookup(ctx, []string{"a"})
	assert.False(t, hit)
}

func TestLRUCacheExpires(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(10, 20*time.Millisecond)

	require.NoError(t, cache.Record(ctx, []string{"a"}, Entry{TrackingID: "a"}))
	assert.Eventually(t, func() bool {
		_, hit, _ := cache.Lookup(ctx, []string{"a"})
		return !hit
	}, time.Second, 10*time.Millisecond)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := NewRedisCache(client, time.Hour)
	exerciseCache(t, cache)

	assert.True(t, mr.Exists(keyPrefix+"fbc:x:7"))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"fbc:x:7"))

	mr.FastForward(2 * time.Hour)
	_, hit, err := cache.Lookup(context.Background(), []string{"fbc:x:7"})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), mr.Addr())
	require.NoError(t, err)
	client.Close()

	client, err = NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	client.Close()
}
