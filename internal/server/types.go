package server

import (
	"encoding/json"

	"github.com/hailam/chessnet/internal/inference"
)

// EvaluateRequest is the body of POST /evaluate.
type EvaluateRequest struct {
	FENs []string `json:"fens"`
}

// EvaluateResponse is returned by POST /evaluate.
type EvaluateResponse struct {
	Results []inference.Result `json:"results"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WSMessage is a client-to-server WebSocket message.
type WSMessage struct {
	Type string   `json:"type"` // "evaluate" or "ping"
	ID   string   `json:"id"`
	FENs []string `json:"fens,omitempty"`
}

// WSResponse is a server-to-client WebSocket message.
type WSResponse struct {
	Type    string          `json:"type"` // "result", "error" or "pong"
	ID      string          `json:"id,omitempty"`
	Results json.RawMessage `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
}
