package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mirevald/daybook/internal/memory"
	"github.com/mirevald/daybook/pkg/store"
)

const (
	// categoryLimit caps GET ?category= responses.
	categoryLimit = 50

	// summaryPerCategory caps each category list in the bare GET summary.
	summaryPerCategory = 10
)

func (s *Server) handleMemoryGet(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	q := r.URL.Query()

	if key := q.Get("key"); key != "" {
		m, err := s.memories.GetMemory(r.Context(), uid, key)
		if err != nil {
			s.memoryError(w, "lookup", err)
			return
		}
		if m == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "Memory not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"memory": m})
		return
	}

	if category := q.Get("category"); category != "" {
		cat := store.Category(category)
		if !cat.IsValid() {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid category"})
			return
		}
		memories, err := s.memories.GetMemoriesByCategory(r.Context(), uid, cat, categoryLimit)
		if err != nil {
			s.memoryError(w, "category lookup", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"memories": memories})
		return
	}

	summary, err := s.memories.Summary(r.Context(), uid, summaryPerCategory)
	if err != nil {
		s.memoryError(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

type memoryWriteRequest struct {
	Key            string   `json:"key"`
	Value          any      `json:"value"`
	Category       string   `json:"category"`
	RelevanceScore *float64 `json:"relevanceScore"`
}

func (s *Server) handleMemoryPost(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeMemoryWrite(w, r)
	if !ok {
		return
	}
	if err := s.memories.StoreMemory(r.Context(), userID(r), req.Key, req.Value, req.category(), req.relevance()); err != nil {
		s.memoryError(w, "store", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "key": req.Key})
}

// handleMemoryPut updates a memory that must already exist.
func (s *Server) handleMemoryPut(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeMemoryWrite(w, r)
	if !ok {
		return
	}
	uid := userID(r)

	existing, err := s.memories.GetMemory(r.Context(), uid, req.Key)
	if err != nil {
		s.memoryError(w, "lookup", err)
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Memory not found"})
		return
	}

	if err := s.memories.StoreMemory(r.Context(), uid, req.Key, req.Value, req.category(), req.relevance()); err != nil {
		s.memoryError(w, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "key": req.Key})
}

type memoryDeleteRequest struct {
	ClearAll bool   `json:"clearAll"`
	Category string `json:"category"`
	Key      string `json:"key"`
}

func (s *Server) handleMemoryDelete(w http.ResponseWriter, r *http.Request) {
	var req memoryDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
		return
	}
	uid := userID(r)

	switch {
	case req.ClearAll:
		total := 0
		for _, cat := range store.Categories() {
			n, err := s.memories.DeleteMemories(r.Context(), uid, cat)
			if err != nil {
				s.memoryError(w, "clear", err)
				return
			}
			total += n
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": total})

	case req.Category != "":
		cat := store.Category(req.Category)
		if !cat.IsValid() {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid category"})
			return
		}
		n, err := s.memories.DeleteMemories(r.Context(), uid, cat)
		if err != nil {
			s.memoryError(w, "delete", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})

	case req.Key != "":
		// Single-key deletion is reserved.
		writeJSON(w, http.StatusNotImplemented, map[string]any{"error": "Deleting a single memory is not supported yet"})

	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Specify clearAll, category or key"})
	}
}

func (s *Server) handleMemoryExport(w http.ResponseWriter, r *http.Request) {
	export, err := s.memories.ExportUserMemories(r.Context(), userID(r))
	if err != nil {
		s.memoryError(w, "export", err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (s *Server) handleMemoryImport(w http.ResponseWriter, r *http.Request) {
	var payload memory.Export
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
		return
	}
	n, err := s.memories.ImportUserMemories(r.Context(), userID(r), payload)
	if err != nil {
		s.memoryError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "imported": n})
}

func decodeMemoryWrite(w http.ResponseWriter, r *http.Request) (memoryWriteRequest, bool) {
	var req memoryWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" || req.Value == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "key and value are required"})
		return req, false
	}
	if req.Category != "" && !store.Category(req.Category).IsValid() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid category"})
		return req, false
	}
	return req, true
}

func (req memoryWriteRequest) category() store.Category {
	if req.Category == "" {
		return store.CategoryContextual
	}
	return store.Category(req.Category)
}

func (req memoryWriteRequest) relevance() float64 {
	if req.RelevanceScore == nil {
		return 1.0
	}
	return *req.RelevanceScore
}

func (s *Server) memoryError(w http.ResponseWriter, op string, err error) {
	slog.Error("httpapi: memory "+op+" failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Memory operation failed"})
}
