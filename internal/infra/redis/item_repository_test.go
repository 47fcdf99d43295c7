package redis

import (
	"context"
	"testing"
	"time"

	"practice-duel-service/internal/domain"
	"practice-duel-service/internal/infra/memory"
)

func TestItemRepositoryCachesInRedis(t *testing.T) {
	mr, client := newTestRedis(t)

	loader := &countingLoader{ItemLoader: memory.NewItemCatalog(sampleItems())}
	repo := NewItemRepository(client, loader, time.Minute)
	filter := domain.ItemFilter{TopicID: "algebra"}

	items, err := repo.SelectCandidateItems(context.Background(), filter)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if loader.selects != 1 {
		t.Fatalf("expected loader called once, got %d", loader.selects)
	}
	if !mr.Exists("duel:items:candidates:" + filter.Key()) {
		t.Fatalf("expected candidate list cached")
	}

	// Second call should hit cache, loader not incremented.
	again, _ := repo.SelectCandidateItems(context.Background(), filter)
	if loader.selects != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.selects)
	}
	if len(again) != 2 || again[0].Prompt == "" {
		t.Fatalf("expected full items from cache, got %+v", again)
	}

	byID, err := repo.ItemsByID(context.Background(), []string{"a2", "g1"})
	if err != nil {
		t.Fatalf("items by id: %v", err)
	}
	if byID[0].ID != "a2" || byID[1].ID != "g1" {
		t.Fatalf("expected requested order, got %+v", byID)
	}
	if loader.lookups != 1 {
		t.Fatalf("expected only g1 to be loaded, lookups=%d", loader.lookups)
	}
}

type countingLoader struct {
	memory.ItemLoader
	selects int
	lookups int
}

func (l *countingLoader) SelectCandidateItems(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error) {
	l.selects++
	return l.ItemLoader.SelectCandidateItems(ctx, filter)
}

func (l *countingLoader) ItemsByID(ctx context.Context, ids []string) ([]domain.Item, error) {
	l.lookups++
	return l.ItemLoader.ItemsByID(ctx, ids)
}

func sampleItems() []domain.Item {
	return []domain.Item{
		{ID: "a1", TopicID: "algebra", Prompt: "Solve x + 2 = 4", Format: domain.FormatShortAnswer, Difficulty: 1400},
		{ID: "a2", TopicID: "algebra", Prompt: "Factor x^2 - 1", Format: domain.FormatMultipleChoice, Difficulty: 1550},
		{ID: "g1", TopicID: "geometry", Prompt: "Sum of triangle angles?", Format: domain.FormatMultipleChoice, Difficulty: 1200},
	}
}
