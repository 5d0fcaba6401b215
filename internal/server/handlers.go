package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hailam/chessnet/internal/inference"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handlers holds the HTTP handlers.
type Handlers struct {
	svc     *inference.Service
	log     zerolog.Logger
	version string
}

// NewHandlers creates handlers around an inference service.
func NewHandlers(svc *inference.Service, version string, log zerolog.Logger) *Handlers {
	return &Handlers{svc: svc, version: version, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, code string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// errorStatus maps service errors to a status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, inference.ErrEmptyBatch):
		return http.StatusBadRequest, "empty_batch"
	case errors.Is(err, inference.ErrBatchTooLarge):
		return http.StatusBadRequest, "batch_too_large"
	case errors.Is(err, inference.ErrInvalidFEN):
		return http.StatusBadRequest, "invalid_fen"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}

// Model describes the loaded network.
func (h *Handlers) Model(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Info())
}

// Evaluate scores a batch of FENs.
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_body")
		return
	}

	results, err := h.svc.Evaluate(r.Context(), req.FENs)
	if err != nil {
		status, code := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Msg("evaluate")
			writeError(w, status, "evaluation failed", code)
			return
		}
		writeError(w, status, err.Error(), code)
		return
	}
	writeJSON(w, http.StatusOK, EvaluateResponse{Results: results})
}
