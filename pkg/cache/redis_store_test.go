//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
	"github.com/ekaya-inc/ekaya-drafts/pkg/testhelpers"
)

func TestRedisStore_Integration(t *testing.T) {
	client := testhelpers.GetTestRedis(t)
	ctx := context.Background()

	s := NewRedisStore(client, "test:"+t.Name()+":", time.Minute)

	e, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, e)

	now := time.Now()
	require.NoError(t, s.Set(ctx, &models.CacheEntry{Key: "k", Response: "Buy our product today", Timestamp: now}))

	e, err = s.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Buy our product today", e.Response)

	ttl, err := client.TTL(ctx, "test:"+t.Name()+":k").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, s.Delete(ctx, "k"))
	e, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestRedisStore_SkipsAlreadyExpiredEntries(t *testing.T) {
	client := testhelpers.GetTestRedis(t)
	ctx := context.Background()

	s := NewRedisStore(client, "test:"+t.Name()+":", time.Minute)
	require.NoError(t, s.Set(ctx, &models.CacheEntry{Key: "old", Response: "x", Timestamp: time.Now().Add(-2 * time.Minute)}))

	n, err := client.Exists(ctx, "test:"+t.Name()+":old").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
