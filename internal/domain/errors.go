package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a room does not exist (or was deleted).
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomNotJoinable is returned when a room is no longer accepting players.
	ErrRoomNotJoinable = errors.New("room is not joinable")
	// ErrRoomFull is returned when the roster already holds maxPlayers.
	ErrRoomFull = errors.New("room is full")
	// ErrNotAParticipant is returned when a user acts on a room they are not in.
	ErrNotAParticipant = errors.New("player is not a participant")
	// ErrNotHost is returned when a host-only action is issued by someone else.
	ErrNotHost = errors.New("player is not the host")
	// ErrTooFewPlayers is returned when a start is requested below minPlayers.
	ErrTooFewPlayers = errors.New("not enough players to start")
	// ErrNotInLobby is returned when an action requires the lobby status.
	ErrNotInLobby = errors.New("room is not in lobby")
	// ErrRoomNotActive is returned when attempts are submitted outside an active match.
	ErrRoomNotActive = errors.New("room is not active")
	// ErrUnknownItem is returned when an attempt targets an item outside the room.
	ErrUnknownItem = errors.New("item is not part of this room")
	// ErrDuplicateAttempt is returned when a player already answered an item.
	ErrDuplicateAttempt = errors.New("attempt already recorded for item")
	// ErrInsufficientContent is returned when too few items qualify at creation.
	ErrInsufficientContent = errors.New("not enough qualifying items")
	// ErrCannotKickSelf is returned when the host targets themselves with a kick.
	ErrCannotKickSelf = errors.New("host cannot kick themselves")
	// ErrInvalidSettings is returned for out-of-range room creation parameters.
	ErrInvalidSettings = errors.New("invalid room settings")
	// ErrInvalidAttempt is returned for malformed attempt payloads.
	ErrInvalidAttempt = errors.New("invalid attempt")
	// ErrInvalidTransition is returned when a status edge is not allowed.
	ErrInvalidTransition = errors.New("invalid room status transition")
	// ErrRoomContention is returned when a room stayed contended past the retry budget.
	ErrRoomContention = errors.New("room update contended, try again")
	// ErrItemNotFound indicates item content could not be loaded.
	ErrItemNotFound = errors.New("item not found")
)
