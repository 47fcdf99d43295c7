package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"practice-duel-service/internal/domain"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Error   bool   `json:"error"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data, Message: msg})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: true, Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusFor maps coordinator errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotHost), errors.Is(err, domain.ErrNotAParticipant):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInsufficientContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidSettings),
		errors.Is(err, domain.ErrInvalidAttempt),
		errors.Is(err, domain.ErrUnknownItem),
		errors.Is(err, domain.ErrCannotKickSelf):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRoomNotJoinable),
		errors.Is(err, domain.ErrRoomFull),
		errors.Is(err, domain.ErrNotInLobby),
		errors.Is(err, domain.ErrRoomNotActive),
		errors.Is(err, domain.ErrTooFewPlayers),
		errors.Is(err, domain.ErrDuplicateAttempt),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrRoomContention):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
