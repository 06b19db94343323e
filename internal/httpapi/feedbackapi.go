package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mirevald/daybook/internal/feedback"
	"github.com/mirevald/daybook/pkg/store"
)

type feedbackRequest struct {
	ConversationID int64  `json:"conversationId"`
	FeedbackType   string `json:"feedbackType"`
	FeedbackText   string `json:"feedbackText"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
		return
	}
	if req.ConversationID == 0 || req.FeedbackType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "conversationId and feedbackType are required"})
		return
	}

	err := s.feedback.Ingest(r.Context(), store.Feedback{
		UserID:         userID(r),
		ConversationID: req.ConversationID,
		FeedbackType:   store.FeedbackType(req.FeedbackType),
		FeedbackText:   req.FeedbackText,
	})
	if err != nil {
		if errors.Is(err, feedback.ErrInvalidType) || errors.Is(err, feedback.ErrMissingUser) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid feedback type"})
			return
		}
		slog.Error("httpapi: feedback ingest failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to record feedback"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
