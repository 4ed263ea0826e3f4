package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/memvault/memvault/internal/model"
)

const (
	redisItemPrefix  = "mem:item:"
	redisIndexPrefix = "mem:idx:"
)

// RedisProvider implements MemoryProvider against a remote Redis service.
// Items are stored as JSON values keyed by id, with a per-owner/scope index
// set for recall and listing.
type RedisProvider struct {
	client  *redis.Client
	entropy *rand.Rand
}

// NewRedisProvider connects to the Redis instance at addr.
func NewRedisProvider(addr, password string, db int) (*RedisProvider, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required: %w", ErrValidation)
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &RedisProvider{
		client:  client,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (r *RedisProvider) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
}

func indexKey(ownerID, scope string) string {
	return redisIndexPrefix + ownerID + ":" + scope
}

func (r *RedisProvider) Remember(ctx context.Context, item *model.MemoryItem) (string, error) {
	stored := *item
	if stored.ID == "" {
		stored.ID = r.newID()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(&stored)
	if err != nil {
		return "", fmt.Errorf("marshal item: %w", ErrValidation)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisItemPrefix+stored.ID, payload, 0)
	pipe.SAdd(ctx, indexKey(stored.OwnerID, stored.Scope), stored.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", translateRedisErr(err)
	}
	return stored.ID, nil
}

func (r *RedisProvider) Recall(ctx context.Context, p RecallParams) ([]model.MemoryItem, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	items, err := r.itemsForOwner(ctx, p.OwnerID, p.Scope)
	if err != nil {
		return nil, err
	}

	out := []model.MemoryItem{}
	for _, m := range items {
		if p.Query != "" && !strings.Contains(m.Content, p.Query) {
			continue
		}
		out = append(out, m)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *RedisProvider) List(ctx context.Context, p ListParams) ([]model.MemoryItem, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	items, err := r.itemsForOwner(ctx, p.OwnerID, p.Scope)
	if err != nil {
		return nil, err
	}

	out := []model.MemoryItem{}
	for _, m := range items {
		if p.Tier != "" && m.SensitivityTier != p.Tier {
			continue
		}
		out = append(out, m)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// itemsForOwner loads every indexed item for the owner/scope, newest first.
// When scope is empty all three scopes are merged.
func (r *RedisProvider) itemsForOwner(ctx context.Context, ownerID, scope string) ([]model.MemoryItem, error) {
	scopes := []string{scope}
	if scope == "" {
		scopes = []string{"personal", "team", "organization"}
	}

	var ids []string
	for _, sc := range scopes {
		members, err := r.client.SMembers(ctx, indexKey(ownerID, sc)).Result()
		if err != nil {
			return nil, translateRedisErr(err)
		}
		ids = append(ids, members...)
	}
	if len(ids) == 0 {
		return []model.MemoryItem{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisItemPrefix + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, translateRedisErr(err)
	}

	items := []model.MemoryItem{}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // index entry with no backing value
		}
		var m model.MemoryItem
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			continue
		}
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (r *RedisProvider) Delete(ctx context.Context, id string) (bool, error) {
	raw, err := r.client.Get(ctx, redisItemPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, translateRedisErr(err)
	}

	var m model.MemoryItem
	_ = json.Unmarshal([]byte(raw), &m)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, redisItemPrefix+id)
	if m.OwnerID != "" {
		pipe.SRem(ctx, indexKey(m.OwnerID, m.Scope), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, translateRedisErr(err)
	}
	return true, nil
}

func (r *RedisProvider) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return translateRedisErr(err)
	}
	return nil
}

func (r *RedisProvider) Close() error {
	return r.client.Close()
}

// translateRedisErr maps client faults into the provider taxonomy. Caller
// cancellation passes through untranslated.
func translateRedisErr(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("redis: %v: %w", err, ErrTimeout)
	case errors.Is(err, redis.Nil):
		return fmt.Errorf("redis: %w", ErrNotFound)
	default:
		return fmt.Errorf("redis: %v: %w", err, ErrUnavailable)
	}
}
