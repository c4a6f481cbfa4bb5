// Package api provides HTTP handlers for the glucose agent API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/johnnydevriese/glucose-agent/internal/store"
	"github.com/johnnydevriese/glucose-agent/internal/tracker"
)

// Handler serves the REST surface of the reading pipeline.
type Handler struct {
	pipeline *tracker.Pipeline
	repo     store.Repository
}

// NewHandler creates a new Handler.
func NewHandler(pipeline *tracker.Pipeline, repo store.Repository) *Handler {
	return &Handler{pipeline: pipeline, repo: repo}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes mounts the API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.handleChat)
		r.Post("/confirm-reading", h.handleConfirmReading)
		r.Get("/readings/{sessionID}", h.handleReadings)
		r.Get("/stats/{sessionID}", h.handleStats)
		r.Get("/health", h.handleHealth)
	})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Response         string          `json:"response,omitempty"`
	ReadingExtracted bool            `json:"reading_extracted,omitempty"`
	ReadingID        string          `json:"reading_id,omitempty"`
	Reading          *readingPayload `json:"reading,omitempty"`
}

type readingPayload struct {
	GlucoseLevel float64 `json:"glucose_level"`
	Date         string  `json:"date"`
	MealStatus   string  `json:"meal_status"`
	Notes        *string `json:"notes,omitempty"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.Message == "" {
		Error(w, http.StatusBadRequest, "session_id and message are required")
		return
	}

	events, err := h.pipeline.HandleChat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	resp := chatResponse{}
	for _, ev := range events {
		switch ev := ev.(type) {
		case tracker.ReadingExtractedEvent:
			resp.ReadingExtracted = true
			resp.ReadingID = ev.ReadingID
			resp.Reading = &readingPayload{
				GlucoseLevel: ev.Reading.GlucoseLevel,
				Date:         ev.Reading.Date.String(),
				MealStatus:   string(ev.Reading.MealStatus),
				Notes:        ev.Reading.Notes,
			}
		case tracker.MessageEvent:
			resp.Response = ev.Text
		}
	}
	JSON(w, http.StatusOK, resp)
}

type confirmReadingRequest struct {
	SessionID string `json:"session_id"`
	ReadingID string `json:"reading_id"`
	Confirm   bool   `json:"confirm"`
	Notes     string `json:"notes,omitempty"`
}

func (h *Handler) handleConfirmReading(w http.ResponseWriter, r *http.Request) {
	var req confirmReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	events, err := h.pipeline.HandleConfirm(r.Context(), req.SessionID, req.ReadingID, req.Confirm, req.Notes)
	if err != nil {
		if tracker.IsNoPending(err) {
			Error(w, http.StatusNotFound, "no pending reading awaiting confirmation")
			return
		}
		Error(w, http.StatusInternalServerError, "failed to process confirmation")
		return
	}

	for _, ev := range events {
		if msg, ok := ev.(tracker.MessageEvent); ok {
			JSON(w, http.StatusOK, map[string]string{"message": msg.Text})
			return
		}
	}
	JSON(w, http.StatusOK, map[string]string{"message": "OK"})
}

func (h *Handler) handleReadings(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	history, err := h.pipeline.History(r.Context(), sessionID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	JSON(w, http.StatusOK, history.Readings)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	stats, err := h.pipeline.Stats(r.Context(), sessionID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}
	JSON(w, http.StatusOK, stats.Stats)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		Error(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
