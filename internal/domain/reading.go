// Package domain contains core domain types for the glucose agent.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MealStatus indicates whether a reading was taken while fasting or after a meal.
type MealStatus string

const (
	// MealFasting is a reading taken before eating.
	MealFasting MealStatus = "fasting"
	// MealPrandial is a reading taken after a meal.
	MealPrandial MealStatus = "prandial"
)

// Valid reports whether the meal status is a known value.
func (m MealStatus) Valid() bool {
	return m == MealFasting || m == MealPrandial
}

// Glucose meter plausibility bounds in mg/dL.
const (
	GlucoseMin = 30
	GlucoseMax = 600
)

// Reading is a single blood glucose measurement.
//
// ID is empty until the reading is confirmed and persisted; an extracted
// candidate circulates without one.
type Reading struct {
	ID           string     `json:"id,omitempty"`
	GlucoseLevel float64    `json:"glucose_level"`
	Date         Date       `json:"date"`
	MealStatus   MealStatus `json:"meal_status"`
	Notes        *string    `json:"notes,omitempty"`
}

// InvalidReading is returned by extraction when no valid reading could be
// identified in the user's text.
type InvalidReading struct {
	Reason string `json:"reason"`
}

// NewReadingID returns a fresh opaque reading identifier.
func NewReadingID() string {
	return uuid.New().String()
}

// dateLayout is the wire format for reading dates.
const dateLayout = "2006-01-02"

// Date is a calendar date without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf truncates a time.Time to its calendar date in the local zone.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current local date.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses an ISO 8601 date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool {
	return d.Time().After(other.Time())
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Time().Format(dateLayout)
}

// MarshalJSON encodes the date as an ISO 8601 string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes an ISO 8601 date string.
func (d *Date) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("date must be a JSON string, got %s", data)
	}
	parsed, err := ParseDate(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
