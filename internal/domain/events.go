package domain

import "time"

// EventType names a room-state change.
type EventType string

const (
	EventRoomCreated     EventType = "room_created"
	EventPlayerJoined    EventType = "player_joined"
	EventPlayerLeft      EventType = "player_left"
	EventPlayerKicked    EventType = "player_kicked"
	EventReadyChanged    EventType = "ready_changed"
	EventRoomStarted     EventType = "room_started"
	EventAttemptRecorded EventType = "attempt_recorded"
	EventRoomCompleted   EventType = "room_completed"
	EventRoomDeleted     EventType = "room_deleted"
)

// RoomEvent carries a room snapshot taken right after a committed change.
type RoomEvent struct {
	Type   EventType `json:"type"`
	RoomID string    `json:"roomId"`
	Actor  string    `json:"actor,omitempty"`
	Target string    `json:"target,omitempty"`
	Room   Room      `json:"room"`
	At     time.Time `json:"at"`
}
