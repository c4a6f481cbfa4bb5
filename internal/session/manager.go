// Package session provides per-conversation transient state management.
package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/johnnydevriese/glucose-agent/internal/domain"
)

// ErrNoPendingReading is returned when a confirmation arrives with no
// extracted reading awaiting it.
var ErrNoPendingReading = errors.New("no pending reading awaiting confirmation")

// Manager holds transient conversational state keyed by session ID.
// Sessions are created on first access and live for the process lifetime;
// confirmed readings are persisted separately and survive restarts.
type Manager struct {
	mu            sync.RWMutex
	sessions      map[string]*State
	transcriptMax int
}

// NewManager creates a session manager. transcriptMax bounds how many
// transcript messages each session retains as conversational context.
func NewManager(transcriptMax int) *Manager {
	return &Manager{
		sessions:      make(map[string]*State),
		transcriptMax: transcriptMax,
	}
}

// Get returns the state for a session, creating it on first access.
func (m *Manager) Get(sessionID string) *State {
	m.mu.RLock()
	st, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[sessionID]; ok {
		return st
	}
	st = &State{transcriptMax: m.transcriptMax}
	m.sessions[sessionID] = st
	slog.Info("Session created", "session_id", sessionID)
	return st
}

// State is the transient state of one conversation: at most one pending
// (unconfirmed) reading and the conversational transcript. All methods are
// safe for concurrent use; each mutation is atomic under the state's mutex,
// which is never held across collaborator calls.
type State struct {
	mu            sync.Mutex
	pendingID     string
	pending       *domain.Reading
	transcript    []domain.StoredMessage
	transcriptMax int
}

// SetPending stores an extracted reading awaiting confirmation, replacing
// any previous one (last extraction wins), and returns the candidate ID a
// confirmation must reference.
func (s *State) SetPending(reading domain.Reading) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingID = domain.NewReadingID()
	r := reading
	s.pending = &r
	return s.pendingID
}

// Pending returns the candidate ID and a copy of the pending reading, or
// ("", nil) when nothing is awaiting confirmation.
func (s *State) Pending() (string, *domain.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return "", nil
	}
	r := *s.pending
	return s.pendingID, &r
}

// CommitPending atomically claims the pending reading for persistence.
// The reading is returned with its candidate ID assigned as the permanent
// ID and optional notes attached; the pending slot is cleared. Returns
// ErrNoPendingReading if nothing is pending or readingID does not match
// the current candidate (a stale confirmation).
func (s *State) CommitPending(readingID, notes string) (domain.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pendingID != readingID {
		return domain.Reading{}, ErrNoPendingReading
	}
	reading := *s.pending
	reading.ID = s.pendingID
	if notes != "" {
		reading.Notes = &notes
	}
	s.pending = nil
	s.pendingID = ""
	return reading, nil
}

// DiscardPending clears the pending reading. Discarding when nothing is
// pending is a no-op, not an error.
func (s *State) DiscardPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.pendingID = ""
}

// AppendTranscript records an exchange in the conversational transcript,
// dropping the oldest messages beyond the retention bound.
func (s *State) AppendTranscript(msgs ...domain.StoredMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, msgs...)
	if s.transcriptMax > 0 && len(s.transcript) > s.transcriptMax {
		overflow := len(s.transcript) - s.transcriptMax
		s.transcript = append([]domain.StoredMessage(nil), s.transcript[overflow:]...)
	}
}

// Transcript returns a copy of the conversational transcript.
func (s *State) Transcript() []domain.StoredMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.StoredMessage, len(s.transcript))
	copy(out, s.transcript)
	return out
}
