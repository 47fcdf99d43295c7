package app_test

import (
	"context"
	"strings"
	"testing"

	"practice-duel-service/internal/app"
	"practice-duel-service/internal/domain"
	"practice-duel-service/internal/infra/memory"

	"github.com/stretchr/testify/require"
)

func TestCreateRoomFromTopic(t *testing.T) {
	items := append(catalog("algebra", 3, 1500), catalog("geometry", 5, 1500)...)
	items = append(items,
		domain.Item{ID: "algebra-essay", TopicID: "algebra", Prompt: "Explain groups", Format: domain.FormatEssay, Difficulty: 1500},
		domain.Item{ID: "algebra-blank", TopicID: "algebra", Format: domain.FormatMultipleChoice, Difficulty: 1500},
	)
	f := newFixture(t, items, nil)

	created, err := f.service.CreateRoom(context.Background(), app.CreateRoomParams{CreatorID: "u1", ItemCount: 3, TopicID: "algebra"})
	require.NoError(t, err)
	require.Len(t, created.ItemIDs, 3)
	require.ElementsMatch(t, []string{"algebra-1", "algebra-2", "algebra-3"}, created.ItemIDs)

	state := f.state(t, created.RoomID)
	require.Equal(t, domain.StatusLobby, state.Room.Status)
	require.Equal(t, "u1", state.Room.HostID)
	require.Equal(t, []string{"u1"}, state.Room.Participants)
	require.Equal(t, created.ItemIDs, state.Room.ItemIDs)
	require.Equal(t, 2, state.Room.MinPlayers)
	require.Equal(t, 10, state.Room.MaxPlayers)
	require.Equal(t, 1, f.publisher.count(domain.EventRoomCreated))
}

func TestCreateRoomTopicNeedsEnoughDisplayableItems(t *testing.T) {
	items := catalog("algebra", 3, 1500)
	items = append(items, domain.Item{ID: "algebra-audio", TopicID: "algebra", Prompt: "Listen", Format: domain.FormatAudio})
	f := newFixture(t, items, nil)

	_, err := f.service.CreateRoom(context.Background(), app.CreateRoomParams{CreatorID: "u1", ItemCount: 4, TopicID: "algebra"})
	require.ErrorIs(t, err, domain.ErrInsufficientContent)

	open, err := f.service.ListOpenRooms(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestCreateRoomPrefersItemsNearCreatorRating(t *testing.T) {
	items := append(catalog("near", 5, 1550), catalog("far", 20, 2600)...)
	f := newFixture(t, items, memory.SkillRatings{"u1": {1400, 1600}})

	created, err := f.service.CreateRoom(context.Background(), app.CreateRoomParams{CreatorID: "u1"})
	require.NoError(t, err)
	require.Len(t, created.ItemIDs, 5)
	for _, id := range created.ItemIDs {
		require.True(t, strings.HasPrefix(id, "near-"), "item %s outside rating band", id)
	}
}

func TestCreateRoomUsesNeutralRatingWithoutHistory(t *testing.T) {
	items := append(catalog("neutral", 5, 1500), catalog("far", 20, 100)...)
	f := newFixture(t, items, memory.SkillRatings{})

	created, err := f.service.CreateRoom(context.Background(), app.CreateRoomParams{CreatorID: "newcomer"})
	require.NoError(t, err)
	for _, id := range created.ItemIDs {
		require.True(t, strings.HasPrefix(id, "neutral-"), "item %s outside neutral band", id)
	}
}

func TestCreateRoomWidensPoolWhenBandIsShort(t *testing.T) {
	items := append(catalog("near", 2, 1500), catalog("far", 4, 2600)...)
	f := newFixture(t, items, memory.SkillRatings{"u1": {1500}})

	created, err := f.service.CreateRoom(context.Background(), app.CreateRoomParams{CreatorID: "u1", ItemCount: 5})
	require.NoError(t, err)
	require.Len(t, created.ItemIDs, 5)

	seen := make(map[string]bool)
	for _, id := range created.ItemIDs {
		require.False(t, seen[id], "item %s drawn twice", id)
		seen[id] = true
	}
}

func TestCreateRoomFailsWhenWidenedPoolIsShort(t *testing.T) {
	items := catalog("only", 3, 1500)
	items = append(items, domain.Item{ID: "essay", TopicID: "only", Prompt: "Discuss", Format: domain.FormatEssay, Difficulty: 1500})
	f := newFixture(t, items, nil)

	_, err := f.service.CreateRoom(context.Background(), app.CreateRoomParams{CreatorID: "u1", ItemCount: 4})
	require.ErrorIs(t, err, domain.ErrInsufficientContent)
}

func TestCreateRoomValidatesSettings(t *testing.T) {
	f := newFixture(t, catalog("t", 30, 1500), nil)
	ctx := context.Background()

	cases := map[string]app.CreateRoomParams{
		"missing creator": {},
		"negative items":  {CreatorID: "u1", ItemCount: -1},
		"too many items":  {CreatorID: "u1", ItemCount: 21},
		"min below two":   {CreatorID: "u1", MinPlayers: 1},
		"max below min":   {CreatorID: "u1", MinPlayers: 4, MaxPlayers: 3},
		"max above cap":   {CreatorID: "u1", MaxPlayers: 11},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.service.CreateRoom(ctx, params)
			require.ErrorIs(t, err, domain.ErrInvalidSettings)
		})
	}
}

func TestCreateRoomSamplingIsRandomButFixedPerRoom(t *testing.T) {
	f := newFixture(t, catalog("t", 10, 1500), nil)
	ctx := context.Background()

	first, err := f.service.CreateRoom(ctx, app.CreateRoomParams{CreatorID: "u1", TopicID: "t"})
	require.NoError(t, err)
	second, err := f.service.CreateRoom(ctx, app.CreateRoomParams{CreatorID: "u2", TopicID: "t"})
	require.NoError(t, err)
	require.NotEqual(t, first.ItemIDs, second.ItemIDs)

	details, err := f.service.GetRoomDetails(ctx, first.RoomID)
	require.NoError(t, err)
	require.Equal(t, first.ItemIDs, details.Room.ItemIDs)
	for i, item := range details.Items {
		require.Equal(t, first.ItemIDs[i], item.ID)
	}
}
