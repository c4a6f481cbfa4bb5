// Package tracker implements the reading pipeline: validation, trend
// analysis, and the per-session extract/confirm state machine.
package tracker

import (
	"fmt"
	"strings"

	"github.com/johnnydevriese/glucose-agent/internal/domain"
)

// ValidationError reports one or more domain-rule violations on a reading
// candidate. Its message is shown to the user verbatim.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, "\n")
}

// Validate checks a reading candidate against the plausibility bounds and
// the session's reference date. Both rules are evaluated so multiple
// violations are reported together. A valid candidate passes through
// unchanged; validation never mutates.
func Validate(r domain.Reading, today domain.Date) error {
	var violations []string

	if r.GlucoseLevel < domain.GlucoseMin || r.GlucoseLevel > domain.GlucoseMax {
		violations = append(violations, fmt.Sprintf(
			"Blood sugar level %g mg/dL is outside typical meter range (%d-%d mg/dL)",
			r.GlucoseLevel, domain.GlucoseMin, domain.GlucoseMax))
	}

	if r.Date.After(today) {
		violations = append(violations, fmt.Sprintf(
			"Date cannot be in the future: %s > %s", r.Date, today))
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}
