package domain

import (
	"slices"
	"strconv"
	"time"
)

// RoomStatus is the lifecycle state of a duel room.
type RoomStatus string

const (
	StatusLobby     RoomStatus = "lobby"
	StatusActive    RoomStatus = "active"
	StatusCompleted RoomStatus = "completed"
)

// CanTransitionTo reports whether next is a legal successor of s.
func (s RoomStatus) CanTransitionTo(next RoomStatus) bool {
	switch s {
	case StatusLobby:
		return next == StatusActive
	case StatusActive:
		return next == StatusCompleted
	default:
		return false
	}
}

// Room is the durable record of one duel session. Version increases by one on
// every committed change, so snapshots of the same room can be ordered.
type Room struct {
	ID           string             `json:"id"`
	Version      uint64             `json:"version"`
	HostID       string             `json:"hostId"`
	Participants []string           `json:"participants"` // join order
	ItemIDs      []string           `json:"itemIds"`
	Status       RoomStatus         `json:"status"`
	ReadyPlayers []string           `json:"readyPlayers"`
	Scores       map[string]float64 `json:"scores"`
	Rankings     []RankingEntry     `json:"rankings,omitempty"`
	MinPlayers   int                `json:"minPlayers"`
	MaxPlayers   int                `json:"maxPlayers"`
	TopicID      string             `json:"topicId,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	ExpiresAt    time.Time          `json:"expiresAt"` // advisory, for store cleanup
	StartedAt    *time.Time         `json:"startedAt,omitempty"`
	CompletedAt  *time.Time         `json:"completedAt,omitempty"`
}

func (r *Room) HasParticipant(userID string) bool {
	return slices.Contains(r.Participants, userID)
}

func (r *Room) IsReady(userID string) bool {
	return slices.Contains(r.ReadyPlayers, userID)
}

func (r *Room) IsFull() bool {
	return len(r.Participants) >= r.MaxPlayers
}

// Joinable reports whether a new player could join.
func (r *Room) Joinable() bool {
	return r.Status == StatusLobby && !r.IsFull()
}

// Activate moves the room from lobby to active and drops the ready set.
func (r *Room) Activate(now time.Time) error {
	if !r.Status.CanTransitionTo(StatusActive) {
		return ErrInvalidTransition
	}
	r.Status = StatusActive
	r.ReadyPlayers = nil
	r.StartedAt = &now
	return nil
}

// Complete freezes the room with its final rankings.
func (r *Room) Complete(rankings []RankingEntry, now time.Time) error {
	if !r.Status.CanTransitionTo(StatusCompleted) {
		return ErrInvalidTransition
	}
	r.Status = StatusCompleted
	r.Rankings = rankings
	r.CompletedAt = &now
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (r Room) Clone() Room {
	out := r
	out.Participants = slices.Clone(r.Participants)
	out.ItemIDs = slices.Clone(r.ItemIDs)
	out.ReadyPlayers = slices.Clone(r.ReadyPlayers)
	out.Rankings = slices.Clone(r.Rankings)
	if r.Scores != nil {
		out.Scores = make(map[string]float64, len(r.Scores))
		for k, v := range r.Scores {
			out.Scores[k] = v
		}
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Attempt is one participant's scored answer to one item. Immutable once stored.
type Attempt struct {
	RoomID      string    `json:"roomId"`
	Participant string    `json:"participant"`
	ItemID      string    `json:"itemId"`
	Response    string    `json:"response"`
	Score       float64   `json:"score"`
	Correct     bool      `json:"correct"`
	ElapsedMs   int64     `json:"elapsedMs"`
	CompletedAt time.Time `json:"completedAt"`
}

// RankingEntry is one row of a completed room's final standings.
type RankingEntry struct {
	Participant  string  `json:"participant"`
	Score        float64 `json:"score"`
	CorrectCount int     `json:"correctCount"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
	Rank         int     `json:"rank"`
}

// RoomState is a room together with its attempts; stores mutate it as one unit.
type RoomState struct {
	Room     Room      `json:"room"`
	Attempts []Attempt `json:"attempts"`
}

func (s RoomState) Clone() RoomState {
	return RoomState{Room: s.Room.Clone(), Attempts: slices.Clone(s.Attempts)}
}

// Empty reports whether the room has lost every participant.
func (s RoomState) Empty() bool {
	return len(s.Room.Participants) == 0
}

// HasAttempt reports whether userID already answered itemID.
func (s RoomState) HasAttempt(userID, itemID string) bool {
	for _, a := range s.Attempts {
		if a.Participant == userID && a.ItemID == itemID {
			return true
		}
	}
	return false
}

// AttemptsBy returns the attempts recorded for one participant.
func (s RoomState) AttemptsBy(userID string) []Attempt {
	var out []Attempt
	for _, a := range s.Attempts {
		if a.Participant == userID {
			out = append(out, a)
		}
	}
	return out
}

// ItemFormat is the presentation format of a quiz item.
type ItemFormat string

const (
	FormatMultipleChoice ItemFormat = "multiple_choice"
	FormatTrueFalse      ItemFormat = "true_false"
	FormatShortAnswer    ItemFormat = "short_answer"
	FormatEssay          ItemFormat = "essay"
	FormatAudio          ItemFormat = "audio"
)

// Item is a quiz item from the content bank.
type Item struct {
	ID         string     `json:"id"`
	TopicID    string     `json:"topicId"`
	Prompt     string     `json:"prompt"`
	Format     ItemFormat `json:"format"`
	Difficulty float64    `json:"difficulty"`
}

// Displayable reports whether the item has a canonical prompt that fits real-time play.
func (i Item) Displayable() bool {
	if i.Prompt == "" {
		return false
	}
	switch i.Format {
	case FormatMultipleChoice, FormatTrueFalse, FormatShortAnswer:
		return true
	}
	return false
}

// ItemFilter narrows candidate items. A nil bound is open.
type ItemFilter struct {
	TopicID       string   `json:"topicId,omitempty"`
	MinDifficulty *float64 `json:"minDifficulty,omitempty"`
	MaxDifficulty *float64 `json:"maxDifficulty,omitempty"`
}

// Matches applies the filter to an item.
func (f ItemFilter) Matches(item Item) bool {
	if f.TopicID != "" && item.TopicID != f.TopicID {
		return false
	}
	if f.MinDifficulty != nil && item.Difficulty < *f.MinDifficulty {
		return false
	}
	if f.MaxDifficulty != nil && item.Difficulty > *f.MaxDifficulty {
		return false
	}
	return true
}

// ParticipantView is the presenter-facing summary of one roster entry.
type ParticipantView struct {
	UserID   string  `json:"userId"`
	IsHost   bool    `json:"isHost"`
	Ready    bool    `json:"ready"`
	Score    float64 `json:"score"`
	Answered int     `json:"answered"`
}

// RoomDetails is the read-only projection served to the presentation layer.
type RoomDetails struct {
	Room         Room              `json:"room"`
	Attempts     []Attempt         `json:"attempts"`
	Items        []Item            `json:"items"`
	Participants []ParticipantView `json:"participants"`
}

// Key is a stable cache key for the filter.
func (f ItemFilter) Key() string {
	key := "topic=" + f.TopicID
	if f.MinDifficulty != nil {
		key += ":min=" + strconv.FormatFloat(*f.MinDifficulty, 'f', -1, 64)
	}
	if f.MaxDifficulty != nil {
		key += ":max=" + strconv.FormatFloat(*f.MaxDifficulty, 'f', -1, 64)
	}
	return key
}
