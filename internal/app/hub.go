package app

import (
	"context"
	"sync"

	"practice-duel-service/internal/domain"
)

const subscriberBuffer = 8

// Hub fans room events out to in-process subscribers. Slow subscribers lose
// their oldest pending event rather than blocking publishers. Events carrying a
// room version older than one already handed to a subscriber are dropped, so a
// subscriber's latest snapshot is never stale.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[*subscriber]struct{}
}

type subscriber struct {
	ch          chan domain.RoomEvent
	lastVersion uint64
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers a listener for one room. cancel is safe to call more than once.
func (h *Hub) Subscribe(roomID string) (<-chan domain.RoomEvent, func()) {
	sub := &subscriber{ch: make(chan domain.RoomEvent, subscriberBuffer)}

	h.mu.Lock()
	subs, ok := h.subscribers[roomID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.subscribers[roomID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.removeLocked(roomID, sub)
	}
	return sub.ch, cancel
}

// Publish delivers the event to every subscriber of its room. A room_deleted
// event also closes the room's subscriptions. Version 0 means unversioned.
func (h *Hub) Publish(_ context.Context, event domain.RoomEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	version := event.Room.Version
	for sub := range h.subscribers[event.RoomID] {
		if version != 0 && version < sub.lastVersion {
			continue
		}
		if version > sub.lastVersion {
			sub.lastVersion = version
		}
		select {
		case sub.ch <- event:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
	if event.Type == domain.EventRoomDeleted {
		for sub := range h.subscribers[event.RoomID] {
			h.removeLocked(event.RoomID, sub)
		}
	}
	return nil
}

// Subscribers reports how many listeners a room has.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[roomID])
}

func (h *Hub) removeLocked(roomID string, sub *subscriber) {
	subs, ok := h.subscribers[roomID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.subscribers, roomID)
	}
}
