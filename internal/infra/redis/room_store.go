package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"practice-duel-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	lobbyIndexKey     = "duel:rooms:lobby"
	defaultMaxRetries = 64
	minKeyTTL         = time.Second
)

// RoomStore keeps each room aggregate (room + attempts) as one JSON value and
// applies updates with optimistic WATCH/MULTI transactions, retrying on conflict.
// Lobbies are indexed in a sorted set scored by creation time.
type RoomStore struct {
	client     *redis.Client
	retention  time.Duration
	maxRetries int
	clock      func() time.Time
	logger     *slog.Logger
}

// NewRoomStore keeps rooms until their expiry plus retention, so finished
// results stay readable for a while.
func NewRoomStore(client *redis.Client, retention time.Duration) *RoomStore {
	return &RoomStore{
		client:     client,
		retention:  retention,
		maxRetries: defaultMaxRetries,
		clock:      time.Now,
		logger:     slog.Default(),
	}
}

func (s *RoomStore) Create(ctx context.Context, state domain.RoomState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(state.Room.ID), data, s.ttlFor(state.Room)).Result()
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	if !ok {
		return fmt.Errorf("room %s already exists", state.Room.ID)
	}
	if state.Room.Status == domain.StatusLobby {
		if err := s.client.ZAdd(ctx, lobbyIndexKey, lobbyMember(state.Room)).Err(); err != nil {
			return fmt.Errorf("index room: %w", err)
		}
	}
	return nil
}

func (s *RoomStore) Get(ctx context.Context, roomID string) (domain.RoomState, error) {
	raw, err := s.client.Get(ctx, s.key(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RoomState{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.RoomState{}, fmt.Errorf("get room: %w", err)
	}
	return decodeState(raw)
}

// Update runs fn against the stored aggregate inside a WATCH on the room key.
// fn may run more than once when a concurrent writer wins the race.
func (s *RoomStore) Update(ctx context.Context, roomID string, fn func(state *domain.RoomState) error) (domain.RoomState, error) {
	key := s.key(roomID)
	var committed domain.RoomState

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		state, err := decodeState(raw)
		if err != nil {
			return err
		}
		version := state.Room.Version
		if err := fn(&state); err != nil {
			return err
		}
		state.Room.Version = version + 1

		var data []byte
		if !state.Empty() {
			if data, err = json.Marshal(state); err != nil {
				return fmt.Errorf("encode room: %w", err)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if state.Empty() {
				pipe.Del(ctx, key)
				pipe.ZRem(ctx, lobbyIndexKey, roomID)
				return nil
			}
			pipe.Set(ctx, key, data, s.ttlFor(state.Room))
			if state.Room.Status == domain.StatusLobby {
				pipe.ZAdd(ctx, lobbyIndexKey, lobbyMember(state.Room))
			} else {
				pipe.ZRem(ctx, lobbyIndexKey, roomID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		committed = state
		return nil
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.RoomState{}, err
		}
		return committed, nil
	}
	return domain.RoomState{}, domain.ErrRoomContention
}

// ListOpen walks the lobby index newest first and drops stale entries it finds.
func (s *RoomStore) ListOpen(ctx context.Context, limit int) ([]domain.Room, error) {
	ids, err := s.client.ZRevRange(ctx, lobbyIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list lobby index: %w", err)
	}
	open := make([]domain.Room, 0)
	if len(ids) == 0 {
		return open, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load lobbies: %w", err)
	}

	var stale []interface{}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		state, err := decodeState([]byte(raw))
		if err != nil {
			s.logger.Warn("dropping undecodable lobby from index", "room_id", ids[i], "error", err)
			stale = append(stale, ids[i])
			continue
		}
		if state.Room.Status != domain.StatusLobby {
			stale = append(stale, ids[i])
			continue
		}
		if state.Room.Joinable() && (limit <= 0 || len(open) < limit) {
			open = append(open, state.Room)
		}
	}
	if len(stale) > 0 {
		// best-effort cleanup
		_ = s.client.ZRem(ctx, lobbyIndexKey, stale...).Err()
	}
	return open, nil
}

// ttlFor never returns zero: go-redis treats a zero expiration as "keep forever".
func (s *RoomStore) ttlFor(room domain.Room) time.Duration {
	ttl := room.ExpiresAt.Sub(s.clock())
	if ttl < 0 {
		ttl = 0
	}
	ttl += s.retention
	if ttl < minKeyTTL {
		ttl = minKeyTTL
	}
	return ttl
}

func (s *RoomStore) key(roomID string) string {
	return "duel:room:" + roomID
}

func lobbyMember(room domain.Room) redis.Z {
	return redis.Z{Score: float64(room.CreatedAt.UnixMilli()), Member: room.ID}
}

func decodeState(raw []byte) (domain.RoomState, error) {
	var state domain.RoomState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.RoomState{}, fmt.Errorf("decode room: %w", err)
	}
	return state, nil
}
