package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"practice-duel-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// ItemLoader fetches item content from a backing store (e.g., Postgres).
type ItemLoader interface {
	SelectCandidateItems(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error)
	ItemsByID(ctx context.Context, ids []string) ([]domain.Item, error)
}

// ItemRepository caches candidate lists and items with TTL to avoid repeated DB hits.
type ItemRepository struct {
	loader ItemLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu         sync.RWMutex
	candidates map[string]cachedItems
	items      map[string]cachedItem
}

type cachedItems struct {
	items     []domain.Item
	expiresAt time.Time
}

type cachedItem struct {
	item      domain.Item
	expiresAt time.Time
}

func NewItemRepository(loader ItemLoader, ttl time.Duration) *ItemRepository {
	return &ItemRepository{
		loader:     loader,
		ttl:        ttl,
		clock:      time.Now,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		candidates: make(map[string]cachedItems),
		items:      make(map[string]cachedItem),
	}
}

func (r *ItemRepository) SelectCandidateItems(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error) {
	key := filter.Key()
	if items, ok := r.cachedCandidates(key); ok {
		return items, nil
	}

	result, err, _ := r.sf.Do("candidates:"+key, func() (interface{}, error) {
		if items, ok := r.cachedCandidates(key); ok {
			return items, nil
		}
		items, err := r.loader.SelectCandidateItems(ctx, filter)
		if err != nil {
			return nil, err
		}

		expiresAt := r.clock().Add(r.ttlWithJitter())
		r.mu.Lock()
		r.candidates[key] = cachedItems{items: items, expiresAt: expiresAt}
		for _, item := range items {
			r.items[item.ID] = cachedItem{item: item, expiresAt: expiresAt}
		}
		r.mu.Unlock()
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Item(nil), result.([]domain.Item)...), nil
}

// ItemsByID returns items in the order requested, loading only cache misses.
func (r *ItemRepository) ItemsByID(ctx context.Context, ids []string) ([]domain.Item, error) {
	now := r.clock()
	found := make(map[string]domain.Item, len(ids))
	var missing []string

	r.mu.RLock()
	for _, id := range ids {
		if entry, ok := r.items[id]; ok && entry.expiresAt.After(now) {
			found[id] = entry.item
		} else {
			missing = append(missing, id)
		}
	}
	r.mu.RUnlock()

	if len(missing) > 0 {
		loaded, err := r.loader.ItemsByID(ctx, missing)
		if err != nil {
			return nil, err
		}
		expiresAt := now.Add(r.ttlWithJitter())
		r.mu.Lock()
		for _, item := range loaded {
			found[item.ID] = item
			r.items[item.ID] = cachedItem{item: item, expiresAt: expiresAt}
		}
		r.mu.Unlock()
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

func (r *ItemRepository) cachedCandidates(key string) ([]domain.Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.candidates[key]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return nil, false
	}
	return append([]domain.Item(nil), entry.items...), true
}

func (r *ItemRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
