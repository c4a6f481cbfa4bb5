package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/johnnydevriese/glucose-agent/internal/domain"
	"github.com/johnnydevriese/glucose-agent/internal/session"
	"github.com/johnnydevriese/glucose-agent/internal/store"
)

type fakeExtractor struct {
	reading *domain.Reading
	invalid *domain.InvalidReading
	err     error
	calls   int
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, _ domain.Date) (*domain.Reading, *domain.InvalidReading, error) {
	f.calls++
	return f.reading, f.invalid, f.err
}

type fakeConverser struct {
	reply          string
	err            error
	lastTranscript []domain.StoredMessage
	lastReadings   []domain.Reading
}

func (f *fakeConverser) Reply(_ context.Context, _ string, transcript []domain.StoredMessage, readings []domain.Reading) (string, error) {
	f.lastTranscript = transcript
	f.lastReadings = readings
	return f.reply, f.err
}

func newTestPipeline(extractor *fakeExtractor, converser *fakeConverser) *Pipeline {
	return New(session.NewManager(40), store.NewMemory(), extractor, converser, 15)
}

func candidate(level float64, status domain.MealStatus) *domain.Reading {
	return &domain.Reading{GlucoseLevel: level, Date: domain.Today(), MealStatus: status}
}

// extractAndConfirm drives one reading through extraction and confirmation.
func extractAndConfirm(t *testing.T, p *Pipeline, extractor *fakeExtractor, sessionID string, level float64, status domain.MealStatus) []Event {
	t.Helper()
	extractor.reading = candidate(level, status)
	events, err := p.HandleChat(context.Background(), sessionID, "my reading")
	if err != nil {
		t.Fatalf("HandleChat: %v", err)
	}
	extracted, ok := events[0].(ReadingExtractedEvent)
	if !ok {
		t.Fatalf("expected ReadingExtractedEvent, got %T", events[0])
	}
	events, err = p.HandleConfirm(context.Background(), sessionID, extracted.ReadingID, true, "")
	if err != nil {
		t.Fatalf("HandleConfirm: %v", err)
	}
	return events
}

func TestHandleChat_ValidReadingAwaitsConfirmation(t *testing.T) {
	extractor := &fakeExtractor{reading: candidate(120, domain.MealFasting)}
	converser := &fakeConverser{}
	p := newTestPipeline(extractor, converser)

	events, err := p.HandleChat(context.Background(), "s1", "it was 120 fasting this morning")
	if err != nil {
		t.Fatalf("HandleChat: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	extracted, ok := events[0].(ReadingExtractedEvent)
	if !ok {
		t.Fatalf("expected ReadingExtractedEvent, got %T", events[0])
	}
	if extracted.ReadingID == "" {
		t.Error("extracted event has no reading id")
	}
	if extracted.Reading.ID != "" {
		t.Error("unconfirmed reading must not carry a persistent id")
	}
	if extracted.Reading.GlucoseLevel != 120 {
		t.Errorf("expected glucose level 120, got %v", extracted.Reading.GlucoseLevel)
	}

	// Nothing reaches confirmed history until the user confirms.
	history, err := p.History(context.Background(), "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history.Readings) != 0 {
		t.Errorf("expected empty history, got %d readings", len(history.Readings))
	}
}

func TestHandleChat_InvalidCandidateRejectedWithoutPending(t *testing.T) {
	extractor := &fakeExtractor{reading: candidate(700, domain.MealFasting)}
	p := newTestPipeline(extractor, &fakeConverser{})

	events, err := p.HandleChat(context.Background(), "s1", "700 this morning")
	if err != nil {
		t.Fatalf("HandleChat: %v", err)
	}
	msg, ok := events[0].(MessageEvent)
	if !ok {
		t.Fatalf("expected MessageEvent, got %T", events[0])
	}
	if !strings.Contains(msg.Text, "700") {
		t.Errorf("rejection %q does not mention the offending value", msg.Text)
	}

	// The rejected candidate was never stored as pending.
	_, err = p.HandleConfirm(context.Background(), "s1", "whatever", true, "")
	if !IsNoPending(err) {
		t.Errorf("expected no-pending error, got %v", err)
	}
}

func TestHandleChat_NoCandidateFallsBackToConversation(t *testing.T) {
	extractor := &fakeExtractor{invalid: &domain.InvalidReading{Reason: "no reading present"}}
	converser := &fakeConverser{reply: "How has your day been?"}
	p := newTestPipeline(extractor, converser)

	events, err := p.HandleChat(context.Background(), "s1", "hello there")
	if err != nil {
		t.Fatalf("HandleChat: %v", err)
	}
	msg, ok := events[0].(MessageEvent)
	if !ok {
		t.Fatalf("expected MessageEvent, got %T", events[0])
	}
	if msg.Text != "How has your day been?" {
		t.Errorf("unexpected reply: %q", msg.Text)
	}

	// The exchange is appended to the transcript for the next turn.
	_, err = p.HandleChat(context.Background(), "s1", "pretty good")
	if err != nil {
		t.Fatalf("HandleChat: %v", err)
	}
	if len(converser.lastTranscript) != 2 {
		t.Fatalf("expected 2 transcript messages, got %d", len(converser.lastTranscript))
	}
	if converser.lastTranscript[0].Role != domain.RoleUser || converser.lastTranscript[0].Content != "hello there" {
		t.Errorf("unexpected first transcript entry: %+v", converser.lastTranscript[0])
	}
	if converser.lastTranscript[1].Role != domain.RoleModel {
		t.Errorf("unexpected second transcript entry: %+v", converser.lastTranscript[1])
	}
}

func TestHandleConfirm_CommitsAndReportsTrend(t *testing.T) {
	extractor := &fakeExtractor{}
	p := newTestPipeline(extractor, &fakeConverser{})

	events := extractAndConfirm(t, p, extractor, "s1", 100, domain.MealFasting)
	msg := events[0].(MessageEvent)
	if !strings.Contains(msg.Text, "I've saved your reading") {
		t.Errorf("expected saved message, got %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "first recorded reading") {
		t.Errorf("first confirm should report first reading, got %q", msg.Text)
	}

	// The second reading is compared against history excluding itself.
	events = extractAndConfirm(t, p, extractor, "s1", 120, domain.MealFasting)
	msg = events[0].(MessageEvent)
	if !strings.Contains(msg.Text, "20.0 mg/dL higher than your average fasting level of 100.0 mg/dL") {
		t.Errorf("trend must exclude the just-committed reading: %q", msg.Text)
	}

	history, err := p.History(context.Background(), "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history.Readings) != 2 {
		t.Fatalf("expected 2 confirmed readings, got %d", len(history.Readings))
	}
	for _, r := range history.Readings {
		if r.ID == "" {
			t.Error("confirmed reading has no id")
		}
	}
}

func TestHandleConfirm_RejectDiscardsPending(t *testing.T) {
	extractor := &fakeExtractor{reading: candidate(120, domain.MealFasting)}
	p := newTestPipeline(extractor, &fakeConverser{})

	events, err := p.HandleChat(context.Background(), "s1", "120 fasting")
	if err != nil {
		t.Fatalf("HandleChat: %v", err)
	}
	extracted := events[0].(ReadingExtractedEvent)

	events, err = p.HandleConfirm(context.Background(), "s1", extracted.ReadingID, false, "")
	if err != nil {
		t.Fatalf("HandleConfirm: %v", err)
	}
	msg := events[0].(MessageEvent)
	if !strings.Contains(msg.Text, "try again") {
		t.Errorf("expected retry prompt, got %q", msg.Text)
	}

	history, err := p.History(context.Background(), "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history.Readings) != 0 {
		t.Errorf("rejected reading reached history: %d readings", len(history.Readings))
	}

	// Pending is cleared, so a late confirm fails.
	_, err = p.HandleConfirm(context.Background(), "s1", extracted.ReadingID, true, "")
	if !IsNoPending(err) {
		t.Errorf("expected no-pending error, got %v", err)
	}
}

func TestHandleConfirm_NoPendingReading(t *testing.T) {
	p := newTestPipeline(&fakeExtractor{}, &fakeConverser{})
	_, err := p.HandleConfirm(context.Background(), "s1", "r1", true, "")
	if !errors.Is(err, ErrNoPendingReading) {
		t.Errorf("expected ErrNoPendingReading, got %v", err)
	}
}

func TestHandleChat_ReextractionOverwritesPending(t *testing.T) {
	extractor := &fakeExtractor{reading: candidate(120, domain.MealFasting)}
	p := newTestPipeline(extractor, &fakeConverser{})

	events, _ := p.HandleChat(context.Background(), "s1", "120 fasting")
	first := events[0].(ReadingExtractedEvent)

	extractor.reading = candidate(130, domain.MealFasting)
	events, _ = p.HandleChat(context.Background(), "s1", "sorry, it was 130")
	second := events[0].(ReadingExtractedEvent)

	// The stale candidate can no longer be confirmed.
	_, err := p.HandleConfirm(context.Background(), "s1", first.ReadingID, true, "")
	if !IsNoPending(err) {
		t.Errorf("stale confirm should fail, got %v", err)
	}

	if _, err := p.HandleConfirm(context.Background(), "s1", second.ReadingID, true, ""); err != nil {
		t.Fatalf("confirming the latest candidate failed: %v", err)
	}
	history, _ := p.History(context.Background(), "s1")
	if len(history.Readings) != 1 || history.Readings[0].GlucoseLevel != 130 {
		t.Errorf("expected only the overwriting reading in history, got %+v", history.Readings)
	}
}

func TestHandleConfirm_AttachesNotes(t *testing.T) {
	extractor := &fakeExtractor{reading: candidate(120, domain.MealFasting)}
	p := newTestPipeline(extractor, &fakeConverser{})

	events, _ := p.HandleChat(context.Background(), "s1", "120 fasting")
	extracted := events[0].(ReadingExtractedEvent)

	if _, err := p.HandleConfirm(context.Background(), "s1", extracted.ReadingID, true, "after a long run"); err != nil {
		t.Fatalf("HandleConfirm: %v", err)
	}
	history, _ := p.History(context.Background(), "s1")
	if history.Readings[0].Notes == nil || *history.Readings[0].Notes != "after a long run" {
		t.Errorf("notes not attached: %+v", history.Readings[0])
	}
}

func TestStats_RoundTrip(t *testing.T) {
	extractor := &fakeExtractor{}
	p := newTestPipeline(extractor, &fakeConverser{})

	extractAndConfirm(t, p, extractor, "s1", 90, domain.MealFasting)
	extractAndConfirm(t, p, extractor, "s1", 110, domain.MealFasting)
	extractAndConfirm(t, p, extractor, "s1", 150, domain.MealPrandial)

	stats, err := p.Stats(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	s := stats.Stats
	if s.TotalReadings != 3 {
		t.Errorf("expected 3 total readings, got %d", s.TotalReadings)
	}
	if !s.HasFasting || !s.HasPrandial {
		t.Errorf("expected both categories present: %+v", s)
	}
	if s.AvgFasting == nil || *s.AvgFasting != 100.0 {
		t.Errorf("expected avg fasting 100.0, got %v", s.AvgFasting)
	}
	if s.AvgPrandial == nil || *s.AvgPrandial != 150.0 {
		t.Errorf("expected avg prandial 150.0, got %v", s.AvgPrandial)
	}
}

func TestHandleChat_ExtractorFailureRecovers(t *testing.T) {
	extractor := &fakeExtractor{err: errors.New("model unavailable")}
	p := newTestPipeline(extractor, &fakeConverser{})

	events, err := p.HandleChat(context.Background(), "s1", "120 fasting")
	if err != nil {
		t.Fatalf("collaborator failure must not surface as an error: %v", err)
	}
	msg, ok := events[0].(MessageEvent)
	if !ok {
		t.Fatalf("expected MessageEvent, got %T", events[0])
	}
	if !strings.Contains(msg.Text, "try again") {
		t.Errorf("expected apology/retry message, got %q", msg.Text)
	}
}

func TestHandleChat_BudgetExhaustionRecovers(t *testing.T) {
	extractor := &fakeExtractor{invalid: &domain.InvalidReading{Reason: "chit-chat"}}
	converser := &fakeConverser{reply: "should not be reached"}
	// Budget of one: spent on extraction, leaving nothing for conversation.
	p := New(session.NewManager(40), store.NewMemory(), extractor, converser, 1)

	events, err := p.HandleChat(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("budget exhaustion must not surface as an error: %v", err)
	}
	msg := events[0].(MessageEvent)
	if msg.Text == "should not be reached" {
		t.Error("conversation ran past an exhausted budget")
	}
}

func TestHandleChat_SessionsAreIndependent(t *testing.T) {
	extractor := &fakeExtractor{}
	p := newTestPipeline(extractor, &fakeConverser{})

	extractAndConfirm(t, p, extractor, "alice", 90, domain.MealFasting)
	extractAndConfirm(t, p, extractor, "bob", 200, domain.MealPrandial)

	history, _ := p.History(context.Background(), "alice")
	if len(history.Readings) != 1 || history.Readings[0].GlucoseLevel != 90 {
		t.Errorf("alice's history contaminated: %+v", history.Readings)
	}
}
