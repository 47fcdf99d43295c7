package memory

import (
	"context"

	"practice-duel-service/internal/domain"
)

// ItemCatalog is a simple item source backed by a slice (useful for tests/demos).
type ItemCatalog struct {
	items []domain.Item
	byID  map[string]domain.Item
}

func NewItemCatalog(items []domain.Item) *ItemCatalog {
	byID := make(map[string]domain.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	return &ItemCatalog{items: items, byID: byID}
}

func (c *ItemCatalog) SelectCandidateItems(_ context.Context, filter domain.ItemFilter) ([]domain.Item, error) {
	var out []domain.Item
	for _, item := range c.items {
		if filter.Matches(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (c *ItemCatalog) ItemsByID(_ context.Context, ids []string) ([]domain.Item, error) {
	out := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		item, ok := c.byID[id]
		if !ok {
			return nil, domain.ErrItemNotFound
		}
		out = append(out, item)
	}
	return out, nil
}

// SkillRatings is a static rating source keyed by user id.
type SkillRatings map[string][]float64

func (s SkillRatings) SkillRatings(_ context.Context, userID string) ([]float64, error) {
	return append([]float64(nil), s[userID]...), nil
}
