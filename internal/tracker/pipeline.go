package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/johnnydevriese/glucose-agent/internal/agent"
	"github.com/johnnydevriese/glucose-agent/internal/domain"
	"github.com/johnnydevriese/glucose-agent/internal/session"
	"github.com/johnnydevriese/glucose-agent/internal/store"
)

// Messages surfaced for recoverable per-turn failures.
const (
	apologyMessage = "Sorry, I'm having trouble processing that right now. Could you try again in a moment?"
	retryMessage   = "No problem, let's try again. What was your reading?"
	savedMessage   = "Great! I've saved your reading. %s\n\nDo you have any other readings to share or questions about your blood sugar?"
)

// ErrNoPendingReading mirrors session.ErrNoPendingReading for callers that
// only import the tracker.
var ErrNoPendingReading = session.ErrNoPendingReading

// Pipeline orchestrates extraction, validation, confirmation, and trend
// analysis for each session.
//
// Per-session state transitions are atomic under the session's own lock,
// which is never held across a collaborator call: a confirm racing an
// in-flight extraction resolves by last write wins on the pending slot.
type Pipeline struct {
	sessions   *session.Manager
	repo       store.Repository
	extractor  agent.Extractor
	converser  agent.Conversationalist
	usageLimit int
}

// New creates a pipeline.
func New(sessions *session.Manager, repo store.Repository, extractor agent.Extractor, converser agent.Conversationalist, usageLimit int) *Pipeline {
	return &Pipeline{
		sessions:   sessions,
		repo:       repo,
		extractor:  extractor,
		converser:  converser,
		usageLimit: usageLimit,
	}
}

// HandleChat processes one inbound chat message. Collaborator failures and
// budget exhaustion are recovered into an apology message; only store
// failures surface as errors.
func (p *Pipeline) HandleChat(ctx context.Context, sessionID, text string) ([]Event, error) {
	st := p.sessions.Get(sessionID)
	if err := p.repo.EnsureSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}

	today := domain.Today()
	budget := agent.NewBudget(p.usageLimit)

	reading, invalid, err := p.extract(ctx, budget, text, today)
	if err != nil {
		slog.Error("Extraction failed", "session_id", sessionID, "error", err)
		return []Event{MessageEvent{Text: apologyMessage}}, nil
	}

	if reading != nil {
		if err := Validate(*reading, today); err != nil {
			// The rejected candidate is never stored as pending.
			return []Event{MessageEvent{
				Text: "I couldn't validate your reading:\n" + err.Error(),
			}}, nil
		}
		readingID := st.SetPending(*reading)
		slog.Info("Reading awaiting confirmation",
			"session_id", sessionID,
			"reading_id", readingID,
			"glucose_level", reading.GlucoseLevel)
		return []Event{ReadingExtractedEvent{ReadingID: readingID, Reading: *reading}}, nil
	}

	if invalid != nil {
		slog.Debug("No reading extracted", "session_id", sessionID, "reason", invalid.Reason)
	}
	return p.converse(ctx, budget, st, sessionID, text)
}

func (p *Pipeline) extract(ctx context.Context, budget *agent.Budget, text string, today domain.Date) (*domain.Reading, *domain.InvalidReading, error) {
	if err := budget.Spend(); err != nil {
		return nil, nil, err
	}
	return p.extractor.Extract(ctx, text, today)
}

// converse delegates the message to the conversation collaborator with the
// transcript as context and confirmed readings for personalization.
func (p *Pipeline) converse(ctx context.Context, budget *agent.Budget, st *session.State, sessionID, text string) ([]Event, error) {
	readings, err := p.repo.ListReadings(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}

	if err := budget.Spend(); err != nil {
		slog.Warn("Usage budget exhausted", "session_id", sessionID)
		return []Event{MessageEvent{Text: apologyMessage}}, nil
	}

	reply, err := p.converser.Reply(ctx, text, st.Transcript(), readings)
	if err != nil {
		slog.Error("Conversation failed", "session_id", sessionID, "error", err)
		return []Event{MessageEvent{Text: apologyMessage}}, nil
	}

	st.AppendTranscript(
		domain.StoredMessage{Role: domain.RoleUser, Content: text},
		domain.StoredMessage{Role: domain.RoleModel, Content: reply},
	)
	return []Event{MessageEvent{Text: reply}}, nil
}

// HandleConfirm resolves a pending reading. Confirmation commits it to
// history and reports the trend against the pre-commit history; rejection
// discards it. A confirmation with nothing pending (or a stale reading ID)
// returns ErrNoPendingReading.
func (p *Pipeline) HandleConfirm(ctx context.Context, sessionID, readingID string, confirm bool, notes string) ([]Event, error) {
	st := p.sessions.Get(sessionID)

	if !confirm {
		st.DiscardPending()
		return []Event{MessageEvent{Text: retryMessage}}, nil
	}

	// Read history before committing so the reading is excluded from its
	// own comparison set.
	history, err := p.repo.ListReadings(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}

	reading, err := st.CommitPending(readingID, notes)
	if err != nil {
		return nil, err
	}

	if err := p.repo.InsertReading(ctx, sessionID, reading); err != nil {
		return nil, fmt.Errorf("persist reading: %w", err)
	}
	slog.Info("Reading confirmed",
		"session_id", sessionID,
		"reading_id", reading.ID,
		"glucose_level", reading.GlucoseLevel,
		"meal_status", reading.MealStatus)

	trend := AnalyzeTrend(reading, history)
	return []Event{MessageEvent{Text: fmt.Sprintf(savedMessage, trend)}}, nil
}

// History returns a session's confirmed readings.
func (p *Pipeline) History(ctx context.Context, sessionID string) (HistoryEvent, error) {
	readings, err := p.repo.ListReadings(ctx, sessionID)
	if err != nil {
		return HistoryEvent{}, fmt.Errorf("list readings: %w", err)
	}
	return HistoryEvent{Readings: readings}, nil
}

// Stats returns a session's statistics, recomputed from confirmed history.
func (p *Pipeline) Stats(ctx context.Context, sessionID string) (StatsEvent, error) {
	readings, err := p.repo.ListReadings(ctx, sessionID)
	if err != nil {
		return StatsEvent{}, fmt.Errorf("list readings: %w", err)
	}
	return StatsEvent{Stats: domain.ComputeStatistics(readings)}, nil
}

// IsNoPending reports whether err is the no-pending-reading condition.
func IsNoPending(err error) bool {
	return errors.Is(err, session.ErrNoPendingReading)
}
