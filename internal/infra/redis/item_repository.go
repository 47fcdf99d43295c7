package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"practice-duel-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ItemLoader fetches item content from a backing store (e.g., Postgres).
type ItemLoader interface {
	SelectCandidateItems(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error)
	ItemsByID(ctx context.Context, ids []string) ([]domain.Item, error)
}

// ItemRepository caches item content in Redis and falls back to a loader on miss.
// Candidate id lists are stored as: SET duel:items:candidates:{filterKey} [ids...]
// Items are stored as:              SET duel:item:{itemID} {json}
type ItemRepository struct {
	client *redis.Client
	loader ItemLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewItemRepository(client *redis.Client, loader ItemLoader, ttl time.Duration) *ItemRepository {
	return &ItemRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ItemRepository) SelectCandidateItems(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error) {
	listKey := r.candidatesKey(filter)
	if items, ok := r.cachedCandidates(ctx, listKey); ok {
		return items, nil
	}

	result, err, _ := r.sf.Do(listKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if items, ok := r.cachedCandidates(ctx, listKey); ok {
			return items, nil
		}

		items, err := r.loader.SelectCandidateItems(ctx, filter)
		if err != nil {
			return nil, err
		}

		ids := make([]string, len(items))
		for i, item := range items {
			ids[i] = item.ID
		}
		encoded, err := json.Marshal(ids)
		if err != nil {
			return nil, err
		}
		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		r.cacheItems(ctx, pipe, items, ttl)
		pipe.Set(ctx, listKey, encoded, ttl)
		_, _ = pipe.Exec(ctx)

		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Item), nil
}

// ItemsByID returns items in the order requested, loading only cache misses.
func (r *ItemRepository) ItemsByID(ctx context.Context, ids []string) ([]domain.Item, error) {
	if len(ids) == 0 {
		return []domain.Item{}, nil
	}
	found := r.cachedItems(ctx, ids)

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		loaded, err := r.loader.ItemsByID(ctx, missing)
		if err != nil {
			return nil, err
		}
		pipe := r.client.Pipeline()
		r.cacheItems(ctx, pipe, loaded, r.ttlWithJitter())
		_, _ = pipe.Exec(ctx)
		for _, item := range loaded {
			found[item.ID] = item
		}
	}

	out := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		item, ok := found[id]
		if !ok {
			return nil, domain.ErrItemNotFound
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *ItemRepository) cachedCandidates(ctx context.Context, listKey string) ([]domain.Item, bool) {
	raw, err := r.client.Get(ctx, listKey).Bytes()
	if err != nil {
		return nil, false
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false
	}
	found := r.cachedItems(ctx, ids)
	items := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		item, ok := found[id]
		if !ok {
			// An item expired before its list; reload the whole list.
			return nil, false
		}
		items = append(items, item)
	}
	return items, true
}

func (r *ItemRepository) cachedItems(ctx context.Context, ids []string) map[string]domain.Item {
	found := make(map[string]domain.Item, len(ids))
	if len(ids) == 0 {
		return found
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.itemKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return found
	}
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var item domain.Item
		if err := json.Unmarshal([]byte(raw), &item); err == nil {
			found[item.ID] = item
		}
	}
	return found
}

func (r *ItemRepository) cacheItems(ctx context.Context, pipe redis.Pipeliner, items []domain.Item, ttl time.Duration) {
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		pipe.Set(ctx, r.itemKey(item.ID), data, ttl)
	}
}

func (r *ItemRepository) candidatesKey(filter domain.ItemFilter) string {
	return "duel:items:candidates:" + filter.Key()
}

func (r *ItemRepository) itemKey(itemID string) string {
	return "duel:item:" + itemID
}

func (r *ItemRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
