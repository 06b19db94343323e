package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/mirevald/daybook/internal/bridge"
)

// supportedAudioFormats is what the speech service accepts on the wire.
var supportedAudioFormats = []string{"pcm16", "g711_ulaw", "g711_alaw"}

func (s *Server) handleAudioStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"audioEnabled":       s.bridge != nil,
		"upstreamConfigured": s.upstreamConfigured,
		"websocketEndpoint":  audioWebSocketPath,
		"supportedFormats":   supportedAudioFormats,
		"maxConnections":     s.maxConnections,
	}
	if s.bridge != nil {
		body["stats"] = s.bridge.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

// handleAudioSocket upgrades the connection and hands it to the bridge.
// Anonymous clients (no ?userId=) are identified by remote address for rate
// limiting.
func (s *Server) handleAudioSocket(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "Audio is not enabled"})
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("httpapi: websocket accept failed", "error", err)
		return
	}

	uid := r.URL.Query().Get("userId")
	clientID := r.RemoteAddr

	if err := s.bridge.HandleClient(r.Context(), clientID, uid, bridge.WrapConn(conn)); err != nil {
		slog.Info("httpapi: audio session ended", "client_id", clientID, "error", err)
	}
}
