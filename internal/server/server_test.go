package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hailam/chessnet/internal/board"
	"github.com/hailam/chessnet/internal/inference"
	"github.com/hailam/chessnet/internal/logging"
	"github.com/hailam/chessnet/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	net, err := model.New(model.Config{Blocks: 1, Filters: 4, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	svc := inference.New(net, inference.Options{MaxBatch: 2, TopMoves: 3}, logging.Nop())
	return New(":0", svc, "test", logging.Nop())
}

func TestHealth(t *testing.T) {
	h := newTestServer(t).Handler()
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestRequestIDPropagates(t *testing.T) {
	h := newTestServer(t).Handler()
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestModelInfo(t *testing.T) {
	h := newTestServer(t).Handler()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/model", nil))

	var info inference.Info
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Config.Blocks != 1 || info.Config.Filters != 4 || info.Parameters == 0 || info.Device != "cpu" {
		t.Errorf("info = %+v", info)
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	h := newTestServer(t).Handler()
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"ok", `{"fens":["` + board.StartFEN + `"]}`, http.StatusOK, ""},
		{"bad json", `{"fens":`, http.StatusBadRequest, "invalid_body"},
		{"empty", `{"fens":[]}`, http.StatusBadRequest, "empty_batch"},
		{"too many", `{"fens":["` + board.StartFEN + `","` + board.StartFEN + `","` + board.StartFEN + `"]}`, http.StatusBadRequest, "batch_too_large"},
		{"bad fen", `{"fens":["xyz"]}`, http.StatusBadRequest, "invalid_fen"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/evaluate", bytes.NewReader([]byte(tc.body)))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tc.status, w.Body.String())
			}
			if tc.status != http.StatusOK {
				var e ErrorResponse
				if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
					t.Fatal(err)
				}
				if e.Code != tc.code {
					t.Errorf("code = %q, want %q", e.Code, tc.code)
				}
				return
			}
			var resp EvaluateResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if len(resp.Results) != 1 || resp.Results[0].LegalMoves != 20 || len(resp.Results[0].Moves) != 3 {
				t.Errorf("results = %+v", resp.Results)
			}
		})
	}
}

func TestEvaluateRequiresPost(t *testing.T) {
	h := newTestServer(t).Handler()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/evaluate", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", w.Code)
	}
}

func dialWS(t *testing.T) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(newTestServer(t).Handler())
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	return ws
}

func roundTrip(t *testing.T, ws *websocket.Conn, msg WSMessage) WSResponse {
	t.Helper()
	if err := ws.WriteJSON(msg); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp WSResponse
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return resp
}

func TestWebSocket(t *testing.T) {
	ws := dialWS(t)

	t.Run("ping", func(t *testing.T) {
		resp := roundTrip(t, ws, WSMessage{Type: "ping", ID: "p1"})
		if resp.Type != "pong" || resp.ID != "p1" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("evaluate", func(t *testing.T) {
		resp := roundTrip(t, ws, WSMessage{Type: "evaluate", ID: "e1", FENs: []string{board.StartFEN}})
		if resp.Type != "result" || resp.ID != "e1" {
			t.Fatalf("resp = %+v", resp)
		}
		var results []inference.Result
		if err := json.Unmarshal(resp.Results, &results); err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 || results[0].LegalMoves != 20 {
			t.Errorf("results = %+v", results)
		}
	})

	t.Run("invalid fen", func(t *testing.T) {
		resp := roundTrip(t, ws, WSMessage{Type: "evaluate", ID: "e2", FENs: []string{"bad"}})
		if resp.Type != "error" || resp.ID != "e2" || resp.Error == "" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		resp := roundTrip(t, ws, WSMessage{Type: "train", ID: "u1"})
		if resp.Type != "error" {
			t.Errorf("resp = %+v", resp)
		}
	})
}
