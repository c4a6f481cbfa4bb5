// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/johnnydevriese/glucose-agent/internal/domain"
)

// Repository defines the interface for persisting confirmed readings.
//
// Confirmed history is append-only: readings are inserted once, at
// confirmation time, and never updated or deleted.
type Repository interface {
	// EnsureSession creates a session record if one does not exist.
	EnsureSession(ctx context.Context, sessionID string) error

	// InsertReading appends a confirmed reading to a session's history.
	// The reading must carry a non-empty ID.
	InsertReading(ctx context.Context, sessionID string, reading domain.Reading) error

	// ListReadings returns a session's confirmed readings in confirmation
	// order. A session with no readings yields an empty slice, not an error.
	ListReadings(ctx context.Context, sessionID string) ([]domain.Reading, error)

	// Ping verifies store connectivity.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
