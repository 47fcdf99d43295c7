package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"practice-duel-service/internal/app"
	"practice-duel-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.DuelService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.DuelService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type readyPayload struct {
	Ready bool `json:"ready"`
}

type kickPayload struct {
	TargetID string `json:"targetId"`
}

type attemptPayload struct {
	ItemID    string  `json:"itemId"`
	Response  string  `json:"response"`
	Score     float64 `json:"score"`
	Correct   bool    `json:"correct"`
	ElapsedMs int64   `json:"elapsedMs"`
}

type attemptResult struct {
	ItemID     string  `json:"itemId"`
	TotalScore float64 `json:"totalScore"`
	Completed  bool    `json:"completed"`
}

type ackPayload struct {
	Action string `json:"action"`
}

type leftPayload struct {
	RoomDeleted bool `json:"roomDeleted"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request, joins the player to the room and streams room
// events while accepting lobby and attempt commands.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	userID := r.URL.Query().Get("userId")
	if roomID == "" || userID == "" {
		http.Error(w, "missing roomID or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	if err := h.service.JoinRoom(ctx, roomID, userID); err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	updates, cancel, err := h.service.Subscribe(ctx, roomID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	left := false
	defer func() {
		if !left {
			h.leaveOnDisconnect(roomID, userID)
		}
	}()

	details, err := h.service.GetRoomDetails(ctx, roomID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	out := newOutbox(16)
	closeSignals := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(out.done)
		for msg := range out.ch {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "room_id", roomID, "user", userID, "error", err)
				// Unblock the read loop too.
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case event, ok := <-updates:
				if !ok {
					return
				}
				if !out.push(outboundMessage[any]{Type: "event", Payload: event}, closeSignals) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if out.push(outboundMessage[any]{Type: "joined", Payload: details}, nil) {
		for {
			var inbound inboundMessage
			if err := conn.ReadJSON(&inbound); err != nil {
				break
			}
			reply, done := h.handleCommand(ctx, roomID, userID, inbound)
			if done {
				left = true
			}
			if !out.push(reply, nil) || done {
				break
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(out.ch)
	<-out.done
}

// outbox is the queue feeding the connection's single writer. done closes when
// the writer stops, after which pushes fail instead of blocking.
type outbox struct {
	ch   chan outboundMessage[any]
	done chan struct{}
}

func newOutbox(size int) *outbox {
	return &outbox{ch: make(chan outboundMessage[any], size), done: make(chan struct{})}
}

// push queues msg and reports false once the writer is gone or stop closes.
func (o *outbox) push(msg outboundMessage[any], stop <-chan struct{}) bool {
	select {
	case o.ch <- msg:
		return true
	case <-o.done:
		return false
	case <-stop:
		return false
	}
}

// handleCommand runs one inbound command. done reports that the player left.
func (h *WSHandler) handleCommand(ctx context.Context, roomID, userID string, inbound inboundMessage) (outboundMessage[any], bool) {
	fail := func(err error) (outboundMessage[any], bool) {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}, false
	}
	ack := func(action string) (outboundMessage[any], bool) {
		return outboundMessage[any]{Type: "ok", Payload: ackPayload{Action: action}}, false
	}

	switch inbound.Type {
	case "ready":
		var payload readyPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fail(errors.New("invalid ready payload"))
		}
		if err := h.service.MarkReady(ctx, roomID, userID, payload.Ready); err != nil {
			return fail(err)
		}
		return ack("ready")
	case "start":
		if err := h.service.ForceStart(ctx, roomID, userID); err != nil {
			return fail(err)
		}
		return ack("start")
	case "kick":
		var payload kickPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.TargetID == "" {
			return fail(errors.New("invalid kick payload"))
		}
		if err := h.service.KickPlayer(ctx, roomID, userID, payload.TargetID); err != nil {
			return fail(err)
		}
		return ack("kick")
	case "leave":
		deleted, err := h.service.LeaveRoom(ctx, roomID, userID)
		if err != nil {
			return fail(err)
		}
		return outboundMessage[any]{Type: "left", Payload: leftPayload{RoomDeleted: deleted}}, true
	case "attempt":
		var payload attemptPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fail(errors.New("invalid attempt payload"))
		}
		result, err := h.service.SubmitAttempt(ctx, app.AttemptSubmission{
			RoomID:    roomID,
			PlayerID:  userID,
			ItemID:    payload.ItemID,
			Response:  payload.Response,
			Score:     payload.Score,
			Correct:   payload.Correct,
			ElapsedMs: payload.ElapsedMs,
		})
		if err != nil {
			return fail(err)
		}
		return outboundMessage[any]{Type: "attemptResult", Payload: attemptResult{
			ItemID:     payload.ItemID,
			TotalScore: result.TotalScore,
			Completed:  result.Completed,
		}}, false
	default:
		return fail(errors.New("unsupported message type"))
	}
}

// leaveOnDisconnect drops a disconnected player from a lobby. Players in an
// active or completed room stay on the roster.
func (h *WSHandler) leaveOnDisconnect(roomID, userID string) {
	_, err := h.service.LeaveRoom(context.Background(), roomID, userID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotInLobby), errors.Is(err, domain.ErrNotAParticipant), errors.Is(err, domain.ErrRoomNotFound):
	default:
		h.logger.Warn("leave on disconnect failed", "room_id", roomID, "user", userID, "error", err)
	}
}
