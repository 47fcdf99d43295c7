package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"practice-duel-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomRepository. Each room has
// its own lock, so writers to one room never wait on another.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
}

type roomEntry struct {
	mu      sync.Mutex
	state   domain.RoomState
	deleted bool
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*roomEntry)}
}

func (s *RoomStore) Create(_ context.Context, state domain.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[state.Room.ID]; ok {
		return fmt.Errorf("room %s already exists", state.Room.ID)
	}
	s.rooms[state.Room.ID] = &roomEntry{state: state.Clone()}
	return nil
}

func (s *RoomStore) Get(_ context.Context, roomID string) (domain.RoomState, error) {
	entry, ok := s.entry(roomID)
	if !ok {
		return domain.RoomState{}, domain.ErrRoomNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return domain.RoomState{}, domain.ErrRoomNotFound
	}
	return entry.state.Clone(), nil
}

// Update applies fn to a private copy under the room lock and commits only on success.
func (s *RoomStore) Update(_ context.Context, roomID string, fn func(state *domain.RoomState) error) (domain.RoomState, error) {
	entry, ok := s.entry(roomID)
	if !ok {
		return domain.RoomState{}, domain.ErrRoomNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return domain.RoomState{}, domain.ErrRoomNotFound
	}

	next := entry.state.Clone()
	if err := fn(&next); err != nil {
		return domain.RoomState{}, err
	}
	next.Room.Version = entry.state.Room.Version + 1
	entry.state = next

	if next.Empty() {
		entry.deleted = true
		// entry lock -> store lock is the only nesting order used.
		s.mu.Lock()
		delete(s.rooms, roomID)
		s.mu.Unlock()
	}
	return next.Clone(), nil
}

// ListOpen returns joinable lobbies, newest first.
func (s *RoomStore) ListOpen(_ context.Context, limit int) ([]domain.Room, error) {
	s.mu.RLock()
	entries := make([]*roomEntry, 0, len(s.rooms))
	for _, entry := range s.rooms {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	open := make([]domain.Room, 0)
	for _, entry := range entries {
		entry.mu.Lock()
		if !entry.deleted && entry.state.Room.Joinable() {
			open = append(open, entry.state.Room.Clone())
		}
		entry.mu.Unlock()
	}

	sort.Slice(open, func(i, j int) bool {
		if !open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].CreatedAt.After(open[j].CreatedAt)
		}
		return open[i].ID < open[j].ID
	})
	if limit > 0 && len(open) > limit {
		open = open[:limit]
	}
	return open, nil
}

func (s *RoomStore) entry(roomID string) (*roomEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rooms[roomID]
	return entry, ok
}
