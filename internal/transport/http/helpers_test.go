package http

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"practice-duel-service/internal/app"
	"practice-duel-service/internal/domain"
	"practice-duel-service/internal/infra/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, itemCount int) *app.DuelService {
	t.Helper()
	items := make([]domain.Item, 0, itemCount)
	for i := 1; i <= itemCount; i++ {
		items = append(items, domain.Item{
			ID:         fmt.Sprintf("item-%d", i),
			TopicID:    "algebra",
			Prompt:     fmt.Sprintf("What is %d + %d?", i, i),
			Format:     domain.FormatShortAnswer,
			Difficulty: 1500,
		})
	}
	return app.NewDuelService(
		memory.NewRoomStore(),
		memory.NewItemCatalog(items),
		memory.SkillRatings{},
		app.DefaultSettings(),
		app.WithRandSource(rand.NewSource(1)),
		app.WithLogger(discardLogger()),
	)
}
