// Package chat provides the WebSocket conversation transport.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/johnnydevriese/glucose-agent/internal/domain"
	"github.com/johnnydevriese/glucose-agent/internal/tracker"
)

const welcomeMessage = "Hi there! How can I help you with tracking your blood sugar today?"

// WebSocketHandler handles WebSocket-based chat sessions.
type WebSocketHandler struct {
	pipeline      *tracker.Pipeline
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(pipeline *tracker.Pipeline, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		pipeline:      pipeline,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsRequest is an inbound WebSocket frame.
type wsRequest struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
	ReadingID string `json:"reading_id,omitempty"`
	Confirm   bool   `json:"confirm,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Outbound frame shapes.
type messageFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type readingExtractedFrame struct {
	Type      string         `json:"type"`
	ReadingID string         `json:"reading_id"`
	Reading   domain.Reading `json:"reading"`
}

type historyFrame struct {
	Type     string           `json:"type"`
	Readings []domain.Reading `json:"readings"`
}

type statsFrame struct {
	Type  string            `json:"type"`
	Stats domain.Statistics `json:"stats"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	// A client may resume an existing session by key; otherwise it gets a
	// fresh one. Session state outlives the connection either way.
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	slog.Info("WebSocket connection request", "session_id", sessionID, "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := h.writeJSON(ctx, ws, messageFrame{Type: "message", Message: welcomeMessage}); err != nil {
		slog.Debug("Failed to send welcome message", "error", err, "session_id", sessionID)
		return
	}

	h.readLoop(ctx, ws, sessionID)
	slog.Info("Chat session ended", "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sessionID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(message, &req); err != nil {
			slog.Warn("Malformed WebSocket frame", "error", err, "session_id", sessionID)
			continue
		}
		// Frames may carry their own session key for multi-session clients.
		sid := sessionID
		if req.SessionID != "" {
			sid = req.SessionID
		}

		events := h.dispatch(ctx, sid, req)
		for _, ev := range events {
			if err := h.writeEvent(ctx, ws, ev); err != nil {
				slog.Debug("WebSocket write failed", "error", err, "session_id", sid)
				return
			}
		}
	}
}

// dispatch routes one inbound frame through the pipeline. Every failure is
// per-turn recoverable: errors come back as chat messages, never as a
// dropped connection.
func (h *WebSocketHandler) dispatch(ctx context.Context, sessionID string, req wsRequest) []tracker.Event {
	var events []tracker.Event
	var err error

	switch req.Action {
	case "message":
		events, err = h.pipeline.HandleChat(ctx, sessionID, req.Message)
	case "confirm_reading":
		events, err = h.pipeline.HandleConfirm(ctx, sessionID, req.ReadingID, req.Confirm, req.Notes)
		if tracker.IsNoPending(err) {
			return []tracker.Event{tracker.MessageEvent{
				Text: "I don't have a reading waiting for confirmation. Could you share your reading again?",
			}}
		}
	case "get_history":
		var ev tracker.HistoryEvent
		ev, err = h.pipeline.History(ctx, sessionID)
		events = []tracker.Event{ev}
	case "get_stats":
		var ev tracker.StatsEvent
		ev, err = h.pipeline.Stats(ctx, sessionID)
		events = []tracker.Event{ev}
	default:
		slog.Warn("Unknown WebSocket action", "action", req.Action, "session_id", sessionID)
		return nil
	}

	if err != nil {
		slog.Error("Failed to handle frame", "action", req.Action, "session_id", sessionID, "error", err)
		return []tracker.Event{tracker.MessageEvent{
			Text: "Something went wrong on my end. Please try again.",
		}}
	}
	return events
}

func (h *WebSocketHandler) writeEvent(ctx context.Context, ws *websocket.Conn, ev tracker.Event) error {
	switch ev := ev.(type) {
	case tracker.MessageEvent:
		return h.writeJSON(ctx, ws, messageFrame{Type: ev.Type(), Message: ev.Text})
	case tracker.ReadingExtractedEvent:
		return h.writeJSON(ctx, ws, readingExtractedFrame{Type: ev.Type(), ReadingID: ev.ReadingID, Reading: ev.Reading})
	case tracker.HistoryEvent:
		return h.writeJSON(ctx, ws, historyFrame{Type: ev.Type(), Readings: ev.Readings})
	case tracker.StatsEvent:
		return h.writeJSON(ctx, ws, statsFrame{Type: ev.Type(), Stats: ev.Stats})
	default:
		return nil
	}
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
