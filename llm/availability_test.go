package llm

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/modelgate/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleAvailability(model string, available bool) ModelAvailability {
	a := ModelAvailability{
		Model:       model,
		Available:   available,
		LastChecked: time.Now().UTC().Truncate(time.Second),
	}
	if !available {
		a.ErrorCode = types.ErrQuotaExceeded
	}
	return a
}

// ---------------------------------------------------------------------------
// Memory store
// ---------------------------------------------------------------------------

func TestMemoryAvailabilityStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAvailabilityStore()

	want := sampleAvailability("gemini-2.5-flash", true)
	require.NoError(t, s.Set(ctx, want, time.Minute))

	got, ok, err := s.Get(ctx, "gemini-2.5-flash")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// 查询大小写不敏感
	_, ok, err = s.Get(ctx, "GEMINI-2.5-FLASH")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryAvailabilityStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAvailabilityStore()

	require.NoError(t, s.Set(ctx, sampleAvailability("gpt-4.1", false), 20*time.Millisecond))

	_, ok, err := s.Get(ctx, "gpt-4.1")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	// 过期条目按"未知"处理，不是"不可用"
	_, ok, err = s.Get(ctx, "gpt-4.1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryAvailabilityStore_RejectsNonPositiveTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAvailabilityStore()

	assert.Error(t, s.Set(ctx, sampleAvailability("m", true), 0))
	assert.Error(t, s.Set(ctx, sampleAvailability("m", true), -time.Second))
}

func TestMemoryAvailabilityStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAvailabilityStore()

	require.NoError(t, s.Set(ctx, sampleAvailability("a", true), time.Minute))
	require.NoError(t, s.Set(ctx, sampleAvailability("b", true), time.Minute))

	require.NoError(t, s.Delete(ctx, "A"))
	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Clear(ctx))
	_, ok, err = s.Get(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryAvailabilityStore_MissingModel(t *testing.T) {
	s := NewMemoryAvailabilityStore()
	_, ok, err := s.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// Redis store
// ---------------------------------------------------------------------------

func newRedisStore(t *testing.T) (AvailabilityStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisAvailabilityStore(client, "", zap.NewNop()), mr, client
}

func TestRedisAvailabilityStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newRedisStore(t)

	want := sampleAvailability("gemini-2.5-pro", false)
	require.NoError(t, s.Set(ctx, want, time.Minute))

	got, ok, err := s.Get(ctx, "GEMINI-2.5-PRO")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Model, got.Model)
	assert.Equal(t, want.Available, got.Available)
	assert.Equal(t, want.ErrorCode, got.ErrorCode)
}

func TestRedisAvailabilityStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr, _ := newRedisStore(t)

	require.NoError(t, s.Set(ctx, sampleAvailability("gpt-4.1", true), time.Second))

	_, ok, err := s.Get(ctx, "gpt-4.1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = s.Get(ctx, "gpt-4.1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisAvailabilityStore_DropsCorruptedEntry(t *testing.T) {
	ctx := context.Background()
	s, mr, _ := newRedisStore(t)

	// 直接往键里塞非 JSON 内容，模拟被污染的缓存
	require.NoError(t, mr.Set("modelgate:availability:gpt-4.1", "{not json"))

	_, ok, err := s.Get(ctx, "gpt-4.1")
	require.NoError(t, err, "corrupted entries are treated as missing, not as failures")
	assert.False(t, ok)
	// 且被清掉
	assert.False(t, mr.Exists("modelgate:availability:gpt-4.1"))
}

func TestRedisAvailabilityStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s, mr, _ := newRedisStore(t)

	require.NoError(t, s.Set(ctx, sampleAvailability("a", true), time.Minute))
	require.NoError(t, s.Set(ctx, sampleAvailability("b", true), time.Minute))
	// Clear 只清自己前缀下的键
	require.NoError(t, mr.Set("unrelated:key", "keep"))

	require.NoError(t, s.Delete(ctx, "a"))
	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Clear(ctx))
	_, ok, err = s.Get(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("unrelated:key"))
}

func TestRedisAvailabilityStore_CustomPrefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisAvailabilityStore(client, "gw:avail:", zap.NewNop())
	require.NoError(t, s.Set(ctx, sampleAvailability("m", true), time.Minute))
	assert.True(t, mr.Exists("gw:avail:m"))
}
