package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection reset")
}
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection reset")
}
func (brokenCache) Delete(context.Context, ...string) error { return nil }

func TestRemember(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewMemory(WithClock(func() time.Time { return now }))
	calls := 0
	produce := func(context.Context) ([]string, error) {
		calls++
		return []string{"CR-1-0001"}, nil
	}

	v, hit, err := Remember(ctx, c, ListKey(1), 30*time.Second, produce)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"CR-1-0001"}, v)

	v, hit, err = Remember(ctx, c, ListKey(1), 30*time.Second, produce)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"CR-1-0001"}, v)
	assert.Equal(t, 1, calls)

	t.Run("expires after ttl", func(t *testing.T) {
		now = now.Add(31 * time.Second)
		_, hit, err := Remember(ctx, c, ListKey(1), 30*time.Second, produce)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, 2, calls)
	})

	t.Run("delete invalidates", func(t *testing.T) {
		require.NoError(t, c.Delete(ctx, ListKey(1)))
		_, hit, _ := Remember(ctx, c, ListKey(1), 30*time.Second, produce)
		assert.False(t, hit)
	})

	t.Run("producer error is not cached", func(t *testing.T) {
		_, _, err := Remember(ctx, c, ListKey(2), time.Minute, func(context.Context) (int, error) {
			return 0, errors.New("db down")
		})
		require.Error(t, err)
		_, ok, _ := c.Get(ctx, ListKey(2))
		assert.False(t, ok)
	})

	t.Run("broken cache degrades to miss", func(t *testing.T) {
		v, hit, err := Remember(ctx, brokenCache{}, ListKey(3), time.Minute, produce)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, []string{"CR-1-0001"}, v)
	})
}
