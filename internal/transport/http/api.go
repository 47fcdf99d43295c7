package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"practice-duel-service/internal/app"

	"github.com/go-chi/chi/v5"
)

// API exposes the duel commands as JSON endpoints.
type API struct {
	service *app.DuelService
	logger  *slog.Logger
}

func NewAPI(service *app.DuelService, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{service: service, logger: logger}
}

// NewRouter mounts health, REST and websocket routes.
func NewRouter(api *API, ws *WSHandler) http.Handler {
	mux := chi.NewRouter()

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.Route("/rooms", func(r chi.Router) {
		r.Get("/", api.ListOpenRooms)
		r.Post("/", api.CreateRoom)

		r.Route("/{roomID}", func(r chi.Router) {
			r.Get("/", api.GetRoomDetails)
			r.Post("/join", api.JoinRoom)
			r.Post("/leave", api.LeaveRoom)
			r.Post("/kick", api.KickPlayer)
			r.Post("/ready", api.MarkReady)
			r.Post("/start", api.ForceStart)
			r.Post("/attempts", api.SubmitAttempt)
			if ws != nil {
				r.Get("/ws", ws.ServeWS)
			}
		})
	})
	return mux
}

type createRoomRequest struct {
	CreatorID  string `json:"creatorId"`
	ItemCount  int    `json:"itemCount"`
	MinPlayers int    `json:"minPlayers"`
	MaxPlayers int    `json:"maxPlayers"`
	TopicID    string `json:"topicId"`
}

func (a *API) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := a.service.CreateRoom(r.Context(), app.CreateRoomParams{
		CreatorID:  req.CreatorID,
		ItemCount:  req.ItemCount,
		MinPlayers: req.MinPlayers,
		MaxPlayers: req.MaxPlayers,
		TopicID:    req.TopicID,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created, "room created")
}

func (a *API) ListOpenRooms(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	rooms, err := a.service.ListOpenRooms(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms, "open rooms")
}

func (a *API) GetRoomDetails(w http.ResponseWriter, r *http.Request) {
	details, err := a.service.GetRoomDetails(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details, "room details")
}

type playerRequest struct {
	PlayerID string `json:"playerId"`
}

func (a *API) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !a.decodePlayer(w, r, &req) {
		return
	}
	if err := a.service.JoinRoom(r.Context(), chi.URLParam(r, "roomID"), req.PlayerID); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil, "joined")
}

func (a *API) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !a.decodePlayer(w, r, &req) {
		return
	}
	deleted, err := a.service.LeaveRoom(r.Context(), chi.URLParam(r, "roomID"), req.PlayerID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"roomDeleted": deleted}, "left")
}

type kickRequest struct {
	HostID   string `json:"hostId"`
	TargetID string `json:"targetId"`
}

func (a *API) KickPlayer(w http.ResponseWriter, r *http.Request) {
	var req kickRequest
	if err := decodeJSON(w, r, &req); err != nil || req.HostID == "" || req.TargetID == "" {
		writeError(w, http.StatusBadRequest, "hostId and targetId are required")
		return
	}
	if err := a.service.KickPlayer(r.Context(), chi.URLParam(r, "roomID"), req.HostID, req.TargetID); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil, "kicked")
}

type readyRequest struct {
	PlayerID string `json:"playerId"`
	Ready    bool   `json:"ready"`
}

func (a *API) MarkReady(w http.ResponseWriter, r *http.Request) {
	var req readyRequest
	if err := decodeJSON(w, r, &req); err != nil || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "playerId is required")
		return
	}
	if err := a.service.MarkReady(r.Context(), chi.URLParam(r, "roomID"), req.PlayerID, req.Ready); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil, "ready updated")
}

type startRequest struct {
	HostID string `json:"hostId"`
}

func (a *API) ForceStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil || req.HostID == "" {
		writeError(w, http.StatusBadRequest, "hostId is required")
		return
	}
	if err := a.service.ForceStart(r.Context(), chi.URLParam(r, "roomID"), req.HostID); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil, "started")
}

type attemptRequest struct {
	PlayerID  string  `json:"playerId"`
	ItemID    string  `json:"itemId"`
	Response  string  `json:"response"`
	Score     float64 `json:"score"`
	Correct   bool    `json:"correct"`
	ElapsedMs int64   `json:"elapsedMs"`
}

func (a *API) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if err := decodeJSON(w, r, &req); err != nil || req.PlayerID == "" || req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "playerId and itemId are required")
		return
	}
	result, err := a.service.SubmitAttempt(r.Context(), app.AttemptSubmission{
		RoomID:    chi.URLParam(r, "roomID"),
		PlayerID:  req.PlayerID,
		ItemID:    req.ItemID,
		Response:  req.Response,
		Score:     req.Score,
		Correct:   req.Correct,
		ElapsedMs: req.ElapsedMs,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result, "attempt recorded")
}

func (a *API) decodePlayer(w http.ResponseWriter, r *http.Request, req *playerRequest) bool {
	if err := decodeJSON(w, r, req); err != nil || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "playerId is required")
		return false
	}
	return true
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
