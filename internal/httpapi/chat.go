package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mirevald/daybook/internal/assistant"
)

// internalErrorMessage is the only 500 body the chat endpoint ever returns.
const internalErrorMessage = "I had trouble processing your request. Please try again."

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Message is required"})
		return
	}

	reply, err := s.dispatcher.Process(r.Context(), userID(r), req.Message, req.SessionID)
	if err != nil {
		if errors.Is(err, assistant.ErrMessageRequired) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Message is required"})
			return
		}
		slog.Error("httpapi: chat turn failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": internalErrorMessage})
		return
	}

	body := map[string]any{
		"success":  true,
		"response": reply.Response,
		"action":   reply.Action,
		"data":     reply.Data,
		"intent":   reply.Intent,
		"entities": reply.Entities,
		"source":   reply.Source,
	}
	if reply.Source == assistant.SourceNLP {
		body["confidence"] = reply.Confidence
	}
	if reply.ActionResult != nil {
		body["actionResult"] = reply.ActionResult
	}
	writeJSON(w, http.StatusOK, body)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpapi: response encoding failed", "error", err)
	}
}
