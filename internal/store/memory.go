package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/johnnydevriese/glucose-agent/internal/domain"
)

// MemoryStore implements Repository with an in-process map. It backs tests
// and deployments that do not need readings to survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	readings map[string][]domain.Reading
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{readings: make(map[string][]domain.Reading)}
}

// EnsureSession creates a session record if one does not exist.
func (s *MemoryStore) EnsureSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.readings[sessionID]; !ok {
		s.readings[sessionID] = nil
	}
	return nil
}

// InsertReading appends a confirmed reading to a session's history.
func (s *MemoryStore) InsertReading(_ context.Context, sessionID string, reading domain.Reading) error {
	if reading.ID == "" {
		return fmt.Errorf("insert reading: reading has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[sessionID] = append(s.readings[sessionID], reading)
	return nil
}

// ListReadings returns a session's confirmed readings in confirmation order.
func (s *MemoryStore) ListReadings(_ context.Context, sessionID string) ([]domain.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	readings := make([]domain.Reading, len(s.readings[sessionID]))
	copy(readings, s.readings[sessionID])
	return readings, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
