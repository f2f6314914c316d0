package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/taarya/taarya/internal/log"
)

// writeJSON encodes v into a buffer before touching the ResponseWriter so
// an encoding failure never produces a half-written body.
func writeJSON(w http.ResponseWriter, logger log.Logger, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logger.Error("encoding response failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Warn("writing response failed", "error", err)
	}
}

// errorBody is the uniform error payload.
type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, logger log.Logger, status int, msg string) {
	writeJSON(w, logger, status, errorBody{Error: msg})
}
