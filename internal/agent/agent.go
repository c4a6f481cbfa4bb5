// Package agent implements the language-model collaborators: structured
// reading extraction and open conversation.
package agent

import (
	"context"
	"errors"

	"github.com/johnnydevriese/glucose-agent/internal/domain"
)

// ErrBudgetExhausted is returned when a turn has spent its allowance of
// collaborator invocations.
var ErrBudgetExhausted = errors.New("collaborator usage budget exhausted")

// Extractor maps free-form user text to a structured reading candidate.
//
// Exactly one of the returns is non-nil on success: a reading candidate, or
// an InvalidReading explaining why none could be identified. Deciding that
// no reading is present is not an error.
type Extractor interface {
	Extract(ctx context.Context, text string, today domain.Date) (*domain.Reading, *domain.InvalidReading, error)
}

// Conversationalist produces a conversational reply given the session
// transcript and the user's confirmed readings for personalization.
type Conversationalist interface {
	Reply(ctx context.Context, text string, transcript []domain.StoredMessage, readings []domain.Reading) (string, error)
}

// Budget caps collaborator invocations within a single inbound turn so the
// exchange between agents cannot loop indefinitely.
type Budget struct {
	remaining int
}

// NewBudget creates a budget allowing limit invocations.
func NewBudget(limit int) *Budget {
	return &Budget{remaining: limit}
}

// Spend consumes one invocation, returning ErrBudgetExhausted once the
// allowance is gone.
func (b *Budget) Spend() error {
	if b.remaining <= 0 {
		return ErrBudgetExhausted
	}
	b.remaining--
	return nil
}
