package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"time"

	"practice-duel-service/internal/domain"

	"github.com/google/uuid"
)

// RoomRepository is the single source of truth for room state. Update must run fn
// and persist its result as one atomic step per room; an error from fn discards
// every change, and a room left without participants is deleted. Every committed
// Update increments Room.Version.
type RoomRepository interface {
	Create(ctx context.Context, state domain.RoomState) error
	Get(ctx context.Context, roomID string) (domain.RoomState, error)
	Update(ctx context.Context, roomID string, fn func(state *domain.RoomState) error) (domain.RoomState, error)
	ListOpen(ctx context.Context, limit int) ([]domain.Room, error)
}

// ItemSource queries the quiz-item content bank.
type ItemSource interface {
	SelectCandidateItems(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error)
	ItemsByID(ctx context.Context, ids []string) ([]domain.Item, error)
}

// SkillRatingSource returns every tracked skill rating of a user.
type SkillRatingSource interface {
	SkillRatings(ctx context.Context, userID string) ([]float64, error)
}

// EventPublisher delivers committed room-state changes to observers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.RoomEvent) error
}

// Settings holds room defaults and bounds.
type Settings struct {
	DefaultItemCount int
	MaxItems         int
	MinPlayers       int
	MaxPlayers       int
	PlayerCap        int
	RatingTolerance  float64
	NeutralRating    float64
	RoomTTL          time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		DefaultItemCount: 5,
		MaxItems:         20,
		MinPlayers:       2,
		MaxPlayers:       10,
		PlayerCap:        10,
		RatingTolerance:  200,
		NeutralRating:    1500,
		RoomTTL:          time.Hour,
	}
}

// DuelService coordinates multiplayer practice duels.
type DuelService struct {
	rooms     RoomRepository
	items     ItemSource
	ratings   SkillRatingSource
	settings  Settings
	hub       *Hub
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// Option customizes a DuelService.
type Option func(*DuelService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *DuelService) { s.now = now }
}

// WithRandSource fixes the item sampler's randomness.
func WithRandSource(src rand.Source) Option {
	return func(s *DuelService) { s.rnd = rand.New(src) }
}

// WithIDGenerator overrides room id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *DuelService) { s.newID = newID }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *DuelService) { s.logger = logger }
}

// WithHub sets the in-process hub used by Subscribe.
func WithHub(hub *Hub) Option {
	return func(s *DuelService) { s.hub = hub }
}

// WithPublisher routes committed events somewhere other than the local hub,
// e.g. a Redis bus that relays back into the hub.
func WithPublisher(p EventPublisher) Option {
	return func(s *DuelService) { s.publisher = p }
}

func NewDuelService(rooms RoomRepository, items ItemSource, ratings SkillRatingSource, settings Settings, opts ...Option) *DuelService {
	s := &DuelService{
		rooms:    rooms,
		items:    items,
		ratings:  ratings,
		settings: settings,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	if s.publisher == nil {
		s.publisher = s.hub
	}
	return s
}

// CreateRoomParams are the inputs of CreateRoom. Zero values take the defaults.
type CreateRoomParams struct {
	CreatorID  string
	ItemCount  int
	MinPlayers int
	MaxPlayers int
	TopicID    string
}

// CreatedRoom is returned by CreateRoom.
type CreatedRoom struct {
	RoomID  string   `json:"roomId"`
	ItemIDs []string `json:"itemIds"`
}

// CreateRoom selects a fair item set and opens a lobby hosted by the creator.
func (s *DuelService) CreateRoom(ctx context.Context, params CreateRoomParams) (CreatedRoom, error) {
	params, err := s.resolveParams(params)
	if err != nil {
		return CreatedRoom{}, err
	}

	itemIDs, err := s.selectItems(ctx, params.CreatorID, params.TopicID, params.ItemCount)
	if err != nil {
		return CreatedRoom{}, err
	}

	now := s.now()
	room := domain.Room{
		ID:           s.newID(),
		Version:      1,
		HostID:       params.CreatorID,
		Participants: []string{params.CreatorID},
		ItemIDs:      itemIDs,
		Status:       domain.StatusLobby,
		Scores:       map[string]float64{params.CreatorID: 0},
		MinPlayers:   params.MinPlayers,
		MaxPlayers:   params.MaxPlayers,
		TopicID:      params.TopicID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.settings.RoomTTL),
	}
	if err := s.rooms.Create(ctx, domain.RoomState{Room: room}); err != nil {
		return CreatedRoom{}, err
	}

	s.logger.Info("room created", "room_id", room.ID, "host", room.HostID, "items", len(itemIDs), "topic", room.TopicID)
	s.publish(ctx, domain.EventRoomCreated, params.CreatorID, "", room)
	return CreatedRoom{RoomID: room.ID, ItemIDs: slices.Clone(itemIDs)}, nil
}

func (s *DuelService) resolveParams(p CreateRoomParams) (CreateRoomParams, error) {
	if p.CreatorID == "" {
		return p, fmt.Errorf("%w: creator is required", domain.ErrInvalidSettings)
	}
	if p.ItemCount == 0 {
		p.ItemCount = s.settings.DefaultItemCount
	}
	if p.MinPlayers == 0 {
		p.MinPlayers = s.settings.MinPlayers
	}
	if p.MaxPlayers == 0 {
		p.MaxPlayers = s.settings.MaxPlayers
	}
	if p.ItemCount < 1 || p.ItemCount > s.settings.MaxItems {
		return p, fmt.Errorf("%w: item count must be between 1 and %d", domain.ErrInvalidSettings, s.settings.MaxItems)
	}
	if p.MinPlayers < 2 || p.MaxPlayers < p.MinPlayers || p.MaxPlayers > s.settings.PlayerCap {
		return p, fmt.Errorf("%w: players must satisfy 2 <= min <= max <= %d", domain.ErrInvalidSettings, s.settings.PlayerCap)
	}
	return p, nil
}

// JoinRoom adds a player to a lobby. Joining a room one is already in is a no-op.
func (s *DuelService) JoinRoom(ctx context.Context, roomID, playerID string) error {
	var joined bool
	state, err := s.rooms.Update(ctx, roomID, func(st *domain.RoomState) error {
		joined = false
		room := &st.Room
		if room.HasParticipant(playerID) {
			return nil
		}
		if room.Status != domain.StatusLobby {
			return domain.ErrRoomNotJoinable
		}
		if room.IsFull() {
			return domain.ErrRoomFull
		}
		room.Participants = append(room.Participants, playerID)
		if room.Scores == nil {
			room.Scores = make(map[string]float64)
		}
		room.Scores[playerID] = 0
		joined = true
		return nil
	})
	if err != nil {
		return err
	}
	if joined {
		s.logger.Info("player joined", "room_id", roomID, "player", playerID, "roster", len(state.Room.Participants))
		s.publish(ctx, domain.EventPlayerJoined, playerID, "", state.Room)
	}
	return nil
}

// LeaveRoom removes a player from a lobby and reports whether the room was deleted.
func (s *DuelService) LeaveRoom(ctx context.Context, roomID, playerID string) (bool, error) {
	var started bool
	state, err := s.rooms.Update(ctx, roomID, func(st *domain.RoomState) error {
		started = false
		room := &st.Room
		if room.Status != domain.StatusLobby {
			return domain.ErrNotInLobby
		}
		if !room.HasParticipant(playerID) {
			return domain.ErrNotAParticipant
		}
		removePlayer(room, playerID)
		if room.HostID == playerID && len(room.Participants) > 0 {
			room.HostID = room.Participants[0]
		}
		var err error
		started, err = s.maybeAutoStart(room)
		return err
	})
	if err != nil {
		return false, err
	}

	if state.Empty() {
		s.logger.Info("room deleted", "room_id", roomID, "last_player", playerID)
		s.publish(ctx, domain.EventRoomDeleted, playerID, "", state.Room)
		return true, nil
	}
	s.logger.Info("player left", "room_id", roomID, "player", playerID, "host", state.Room.HostID)
	s.publish(ctx, domain.EventPlayerLeft, playerID, "", state.Room)
	if started {
		s.publish(ctx, domain.EventRoomStarted, playerID, "", state.Room)
	}
	return false, nil
}

// KickPlayer lets the host remove another participant from the lobby.
func (s *DuelService) KickPlayer(ctx context.Context, roomID, hostID, targetID string) error {
	var started bool
	state, err := s.rooms.Update(ctx, roomID, func(st *domain.RoomState) error {
		started = false
		room := &st.Room
		if room.Status != domain.StatusLobby {
			return domain.ErrNotInLobby
		}
		if room.HostID != hostID {
			return domain.ErrNotHost
		}
		if targetID == hostID {
			return domain.ErrCannotKickSelf
		}
		if !room.HasParticipant(targetID) {
			return domain.ErrNotAParticipant
		}
		removePlayer(room, targetID)
		var err error
		started, err = s.maybeAutoStart(room)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("player kicked", "room_id", roomID, "host", hostID, "target", targetID)
	s.publish(ctx, domain.EventPlayerKicked, hostID, targetID, state.Room)
	if started {
		s.publish(ctx, domain.EventRoomStarted, hostID, "", state.Room)
	}
	return nil
}

// MarkReady sets a participant's readiness and starts the match once everyone is ready.
func (s *DuelService) MarkReady(ctx context.Context, roomID, playerID string, ready bool) error {
	var started bool
	state, err := s.rooms.Update(ctx, roomID, func(st *domain.RoomState) error {
		started = false
		room := &st.Room
		if room.Status != domain.StatusLobby {
			return domain.ErrNotInLobby
		}
		if !room.HasParticipant(playerID) {
			return domain.ErrNotAParticipant
		}
		if ready && !room.IsReady(playerID) {
			room.ReadyPlayers = append(room.ReadyPlayers, playerID)
		} else if !ready {
			room.ReadyPlayers = slices.DeleteFunc(room.ReadyPlayers, func(id string) bool { return id == playerID })
		}
		var err error
		started, err = s.maybeAutoStart(room)
		return err
	})
	if err != nil {
		return err
	}

	s.publish(ctx, domain.EventReadyChanged, playerID, "", state.Room)
	if started {
		s.logger.Info("room started", "room_id", roomID, "trigger", "all_ready", "players", len(state.Room.Participants))
		s.publish(ctx, domain.EventRoomStarted, playerID, "", state.Room)
	}
	return nil
}

// ForceStart lets the host begin the match without waiting for readiness.
func (s *DuelService) ForceStart(ctx context.Context, roomID, hostID string) error {
	state, err := s.rooms.Update(ctx, roomID, func(st *domain.RoomState) error {
		room := &st.Room
		if room.Status != domain.StatusLobby {
			return domain.ErrNotInLobby
		}
		if room.HostID != hostID {
			return domain.ErrNotHost
		}
		if len(room.Participants) < room.MinPlayers {
			return domain.ErrTooFewPlayers
		}
		return room.Activate(s.now())
	})
	if err != nil {
		return err
	}

	s.logger.Info("room started", "room_id", roomID, "trigger", "host", "players", len(state.Room.Participants))
	s.publish(ctx, domain.EventRoomStarted, hostID, "", state.Room)
	return nil
}

// maybeAutoStart activates the room when the post-update roster is fully ready.
func (s *DuelService) maybeAutoStart(room *domain.Room) (bool, error) {
	if room.Status != domain.StatusLobby || len(room.Participants) < room.MinPlayers {
		return false, nil
	}
	for _, id := range room.Participants {
		if !room.IsReady(id) {
			return false, nil
		}
	}
	if err := room.Activate(s.now()); err != nil {
		return false, err
	}
	return true, nil
}

func removePlayer(room *domain.Room, playerID string) {
	match := func(id string) bool { return id == playerID }
	room.Participants = slices.DeleteFunc(room.Participants, match)
	room.ReadyPlayers = slices.DeleteFunc(room.ReadyPlayers, match)
	delete(room.Scores, playerID)
}

// AttemptSubmission is one answer sent by a participant.
type AttemptSubmission struct {
	RoomID    string
	PlayerID  string
	ItemID    string
	Response  string
	Score     float64
	Correct   bool
	ElapsedMs int64
}

// AttemptResult summarizes a recorded attempt.
type AttemptResult struct {
	TotalScore float64 `json:"totalScore"`
	Completed  bool    `json:"completed"`
}

// SubmitAttempt records a participant's answer exactly once per item and completes
// the room when the last outstanding attempt lands.
func (s *DuelService) SubmitAttempt(ctx context.Context, sub AttemptSubmission) (AttemptResult, error) {
	if sub.ElapsedMs < 0 {
		return AttemptResult{}, fmt.Errorf("%w: elapsed time must not be negative", domain.ErrInvalidAttempt)
	}

	var result AttemptResult
	state, err := s.rooms.Update(ctx, sub.RoomID, func(st *domain.RoomState) error {
		result = AttemptResult{}
		room := &st.Room
		if !room.HasParticipant(sub.PlayerID) {
			return domain.ErrNotAParticipant
		}
		if !slices.Contains(room.ItemIDs, sub.ItemID) {
			return domain.ErrUnknownItem
		}
		if st.HasAttempt(sub.PlayerID, sub.ItemID) {
			return domain.ErrDuplicateAttempt
		}
		if room.Status != domain.StatusActive {
			return domain.ErrRoomNotActive
		}

		now := s.now()
		st.Attempts = append(st.Attempts, domain.Attempt{
			RoomID:      room.ID,
			Participant: sub.PlayerID,
			ItemID:      sub.ItemID,
			Response:    sub.Response,
			Score:       sub.Score,
			Correct:     sub.Correct,
			ElapsedMs:   sub.ElapsedMs,
			CompletedAt: now,
		})

		total := 0.0
		for _, a := range st.AttemptsBy(sub.PlayerID) {
			total += a.Score
		}
		if room.Scores == nil {
			room.Scores = make(map[string]float64)
		}
		room.Scores[sub.PlayerID] = total
		result.TotalScore = total

		if !AllAnswered(*st) {
			return nil
		}
		if err := room.Complete(ComputeRankings(*st), now); err != nil {
			return err
		}
		result.Completed = true
		return nil
	})
	if err != nil {
		return AttemptResult{}, err
	}

	s.logger.Debug("attempt recorded", "room_id", sub.RoomID, "player", sub.PlayerID, "item", sub.ItemID, "total", result.TotalScore)
	s.publish(ctx, domain.EventAttemptRecorded, sub.PlayerID, sub.ItemID, state.Room)
	if result.Completed {
		s.logger.Info("room completed", "room_id", sub.RoomID, "players", len(state.Room.Rankings))
		s.publish(ctx, domain.EventRoomCompleted, sub.PlayerID, "", state.Room)
	}
	return result, nil
}

// GetRoomDetails returns the presentation projection of a room.
func (s *DuelService) GetRoomDetails(ctx context.Context, roomID string) (domain.RoomDetails, error) {
	state, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return domain.RoomDetails{}, err
	}
	items, err := s.items.ItemsByID(ctx, state.Room.ItemIDs)
	if err != nil {
		return domain.RoomDetails{}, fmt.Errorf("load room items: %w", err)
	}

	views := make([]domain.ParticipantView, 0, len(state.Room.Participants))
	for _, id := range state.Room.Participants {
		views = append(views, domain.ParticipantView{
			UserID:   id,
			IsHost:   id == state.Room.HostID,
			Ready:    state.Room.IsReady(id),
			Score:    state.Room.Scores[id],
			Answered: len(state.AttemptsBy(id)),
		})
	}
	attempts := state.Attempts
	if attempts == nil {
		attempts = []domain.Attempt{}
	}
	return domain.RoomDetails{
		Room:         state.Room,
		Attempts:     attempts,
		Items:        items,
		Participants: views,
	}, nil
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListOpenRooms returns joinable lobbies, newest first.
func (s *DuelService) ListOpenRooms(ctx context.Context, limit int) ([]domain.Room, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.rooms.ListOpen(ctx, limit)
}

// Subscribe returns a channel of room events. The caller must invoke the returned
// cancel function to avoid leaks.
func (s *DuelService) Subscribe(ctx context.Context, roomID string) (<-chan domain.RoomEvent, func(), error) {
	if _, err := s.rooms.Get(ctx, roomID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.Subscribe(roomID)
	return ch, cancel, nil
}

func (s *DuelService) publish(ctx context.Context, typ domain.EventType, actor, target string, room domain.Room) {
	event := domain.RoomEvent{
		Type:   typ,
		RoomID: room.ID,
		Actor:  actor,
		Target: target,
		Room:   room,
		At:     s.now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish room event failed", "room_id", room.ID, "type", typ, "error", err)
	}
}
