package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"practice-duel-service/internal/domain"

	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Error   bool            `json:"error"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func call(t *testing.T, server *httptest.Server, method, path string, body any) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestRESTDuelFlow(t *testing.T) {
	service := newTestService(t, 2)
	server := httptest.NewServer(NewRouter(NewAPI(service, discardLogger()), nil))
	defer server.Close()

	status, resp := call(t, server, http.MethodPost, "/rooms", map[string]any{"creatorId": "alice", "itemCount": 2})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var created struct {
		RoomID  string   `json:"roomId"`
		ItemIDs []string `json:"itemIds"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	require.Len(t, created.ItemIDs, 2)
	room := "/rooms/" + created.RoomID

	status, _ = call(t, server, http.MethodPost, room+"/join", map[string]string{"playerId": "bob"})
	require.Equal(t, http.StatusOK, status)

	status, resp = call(t, server, http.MethodGet, "/rooms", nil)
	require.Equal(t, http.StatusOK, status)
	var open []domain.Room
	require.NoError(t, json.Unmarshal(resp.Data, &open))
	require.Len(t, open, 1)

	status, _ = call(t, server, http.MethodPost, room+"/start", map[string]string{"hostId": "bob"})
	require.Equal(t, http.StatusForbidden, status)
	status, _ = call(t, server, http.MethodPost, room+"/ready", map[string]any{"playerId": "alice", "ready": true})
	require.Equal(t, http.StatusOK, status)
	status, _ = call(t, server, http.MethodPost, room+"/ready", map[string]any{"playerId": "bob", "ready": true})
	require.Equal(t, http.StatusOK, status)

	submit := func(player, item string, score float64) (int, apiResponse) {
		return call(t, server, http.MethodPost, room+"/attempts", map[string]any{
			"playerId": player, "itemId": item, "response": "42", "score": score, "correct": score > 0, "elapsedMs": 400,
		})
	}
	for _, item := range created.ItemIDs {
		status, resp = submit("alice", item, 10)
		require.Equal(t, http.StatusOK, status, resp.Message)
	}
	status, _ = submit("alice", created.ItemIDs[0], 10)
	require.Equal(t, http.StatusConflict, status)

	status, _ = submit("bob", created.ItemIDs[0], 3)
	require.Equal(t, http.StatusOK, status)
	status, resp = submit("bob", created.ItemIDs[1], 0)
	require.Equal(t, http.StatusOK, status)
	var result struct {
		TotalScore float64 `json:"totalScore"`
		Completed  bool    `json:"completed"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	require.Equal(t, 3.0, result.TotalScore)
	require.True(t, result.Completed)

	status, resp = call(t, server, http.MethodGet, room, nil)
	require.Equal(t, http.StatusOK, status)
	var details domain.RoomDetails
	require.NoError(t, json.Unmarshal(resp.Data, &details))
	require.Equal(t, domain.StatusCompleted, details.Room.Status)
	require.Len(t, details.Attempts, 4)
	require.Equal(t, "alice", details.Room.Rankings[0].Participant)
	require.Equal(t, 1, details.Room.Rankings[0].Rank)
}

func TestRESTErrors(t *testing.T) {
	service := newTestService(t, 3)
	server := httptest.NewServer(NewRouter(NewAPI(service, discardLogger()), nil))
	defer server.Close()

	status, resp := call(t, server, http.MethodPost, "/rooms", map[string]any{"creatorId": "alice", "itemCount": 3, "minPlayers": 3})
	require.Equal(t, http.StatusCreated, status)
	var created struct {
		RoomID string `json:"roomId"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	room := "/rooms/" + created.RoomID

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown room", http.MethodGet, "/rooms/nope", nil, http.StatusNotFound},
		{"too many items", http.MethodPost, "/rooms", map[string]any{"creatorId": "x", "itemCount": 50}, http.StatusBadRequest},
		{"not enough content", http.MethodPost, "/rooms", map[string]any{"creatorId": "x", "itemCount": 4}, http.StatusUnprocessableEntity},
		{"unknown field", http.MethodPost, room + "/join", map[string]any{"playerId": "bob", "extra": true}, http.StatusBadRequest},
		{"missing player", http.MethodPost, room + "/join", map[string]any{}, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/rooms?limit=abc", nil, http.StatusBadRequest},
		{"kick self", http.MethodPost, room + "/kick", map[string]string{"hostId": "alice", "targetId": "alice"}, http.StatusBadRequest},
		{"stranger readies", http.MethodPost, room + "/ready", map[string]any{"playerId": "eve", "ready": true}, http.StatusForbidden},
		{"too few players", http.MethodPost, room + "/start", map[string]string{"hostId": "alice"}, http.StatusConflict},
		{"attempt in lobby", http.MethodPost, room + "/attempts", map[string]any{"playerId": "alice", "itemId": "item-1"}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, resp := call(t, server, tc.method, tc.path, tc.body)
			require.Equal(t, tc.want, status, resp.Message)
			require.True(t, resp.Error)
		})
	}

	status, resp = call(t, server, http.MethodPost, room+"/leave", map[string]string{"playerId": "alice"})
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"roomDeleted":true}`, string(resp.Data))
}

func TestStatusForMapsWrappedErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrRoomNotFound, http.StatusNotFound},
		{domain.ErrNotHost, http.StatusForbidden},
		{domain.ErrRoomFull, http.StatusConflict},
		{domain.ErrRoomContention, http.StatusConflict},
		{fmt.Errorf("wrap: %w", domain.ErrInvalidAttempt), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestHealthz(t *testing.T) {
	server := httptest.NewServer(NewRouter(NewAPI(newTestService(t, 1), nil), nil))
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
}
