package app_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"practice-duel-service/internal/app"
	"practice-duel-service/internal/domain"
	"practice-duel-service/internal/infra/memory"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingPublisher counts every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RoomEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.RoomEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(t domain.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	service   *app.DuelService
	store     *memory.RoomStore
	clock     *fakeClock
	publisher *recordingPublisher
}

func newFixture(t *testing.T, items []domain.Item, ratings memory.SkillRatings) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewRoomStore(),
		clock:     newFakeClock(),
		publisher: &recordingPublisher{},
	}
	ids := 0
	var idMu sync.Mutex
	f.service = app.NewDuelService(
		f.store,
		memory.NewItemCatalog(items),
		ratings,
		app.DefaultSettings(),
		app.WithClock(f.clock.Now),
		app.WithRandSource(rand.NewSource(42)),
		app.WithIDGenerator(func() string {
			idMu.Lock()
			defer idMu.Unlock()
			ids++
			return fmt.Sprintf("room-%d", ids)
		}),
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		app.WithPublisher(f.publisher),
	)
	return f
}

// newRoom creates a room hosted by host and joins the other players.
func (f *fixture) newRoom(t *testing.T, params app.CreateRoomParams, others ...string) app.CreatedRoom {
	t.Helper()
	ctx := context.Background()
	created, err := f.service.CreateRoom(ctx, params)
	require.NoError(t, err)
	for _, p := range others {
		require.NoError(t, f.service.JoinRoom(ctx, created.RoomID, p))
	}
	return created
}

func (f *fixture) state(t *testing.T, roomID string) domain.RoomState {
	t.Helper()
	state, err := f.store.Get(context.Background(), roomID)
	require.NoError(t, err)
	return state
}

// catalog builds count displayable items on one topic around difficulty.
func catalog(topic string, count int, difficulty float64) []domain.Item {
	items := make([]domain.Item, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, domain.Item{
			ID:         fmt.Sprintf("%s-%d", topic, i+1),
			TopicID:    topic,
			Prompt:     fmt.Sprintf("%s question %d", topic, i+1),
			Format:     domain.FormatMultipleChoice,
			Difficulty: difficulty,
		})
	}
	return items
}
