package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memvault/memvault/internal/model"
)

func newTestRedis(t *testing.T) (*RedisProvider, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	r, err := NewRedisProvider(mr.Addr(), "", 0)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = r.Close()
		mr.Close()
	})
	return r, mr
}

func TestRedisRememberAndRecall(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	id, err := r.Remember(ctx, &model.MemoryItem{
		OwnerID:         "user-1",
		Scope:           "team",
		Content:         "standup moved to 9:30",
		SensitivityTier: model.TierInternal,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := r.Recall(ctx, RecallParams{OwnerID: "user-1", Scope: "team", Query: "standup"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "standup moved to 9:30", got[0].Content)

	miss, err := r.Recall(ctx, RecallParams{OwnerID: "user-1", Scope: "team", Query: "retro"})
	require.NoError(t, err)
	assert.Empty(t, miss)
}

func TestRedisRecallNewestFirst(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	old := time.Now().UTC().Add(-time.Hour)
	_, err := r.Remember(ctx, &model.MemoryItem{OwnerID: "u", Scope: "team", Content: "old", SensitivityTier: model.TierPublic, CreatedAt: old})
	require.NoError(t, err)
	_, err = r.Remember(ctx, &model.MemoryItem{OwnerID: "u", Scope: "team", Content: "new", SensitivityTier: model.TierPublic})
	require.NoError(t, err)

	got, err := r.Recall(ctx, RecallParams{OwnerID: "u", Scope: "team"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Content)
}

func TestRedisListTierFilter(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	r.Remember(ctx, &model.MemoryItem{OwnerID: "u", Scope: "team", Content: "a", SensitivityTier: model.TierPublic})
	r.Remember(ctx, &model.MemoryItem{OwnerID: "u", Scope: "team", Content: "b", SensitivityTier: model.TierRestricted})

	got, err := r.List(ctx, ListParams{OwnerID: "u", Tier: model.TierRestricted})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Content)
}

func TestRedisDelete(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	id, err := r.Remember(ctx, &model.MemoryItem{OwnerID: "u", Scope: "personal", Content: "x", SensitivityTier: model.TierPublic})
	require.NoError(t, err)

	deleted, err := r.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = r.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err := r.Recall(ctx, RecallParams{OwnerID: "u", Scope: "personal"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisHealthCheckFailsWhenDown(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	require.NoError(t, r.HealthCheck(ctx))

	mr.Close()
	err := r.HealthCheck(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable), "expected ErrUnavailable, got %v", err)
}

func TestRedisUnavailableMapsToTaxonomy(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)
	mr.Close()

	_, err := r.Recall(ctx, RecallParams{OwnerID: "u", Scope: "team"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout),
		"expected a provider fault, got %v", err)
}
