package tracker

import (
	"fmt"

	"github.com/johnnydevriese/glucose-agent/internal/domain"
)

// trendDeadZone is how far a reading may sit from the category average, in
// mg/dL, and still be called consistent with it.
const trendDeadZone = 10

// AnalyzeTrend compares a reading against the confirmed history of the same
// meal status. It is a pure function: identical inputs always produce the
// identical message.
func AnalyzeTrend(reading domain.Reading, history []domain.Reading) string {
	if len(history) == 0 {
		return "This is your first recorded reading."
	}

	var sum float64
	var count int
	for _, r := range history {
		if r.MealStatus == reading.MealStatus {
			sum += r.GlucoseLevel
			count++
		}
	}
	if count == 0 {
		return fmt.Sprintf("This is your first %s reading.", reading.MealStatus)
	}

	avg := sum / float64(count)
	diff := reading.GlucoseLevel - avg

	switch {
	case diff < trendDeadZone && diff > -trendDeadZone:
		return fmt.Sprintf("This reading is consistent with your average %s level of %.1f mg/dL.",
			reading.MealStatus, avg)
	case diff > 0:
		return fmt.Sprintf("This reading is %.1f mg/dL higher than your average %s level of %.1f mg/dL.",
			diff, reading.MealStatus, avg)
	default:
		return fmt.Sprintf("This reading is %.1f mg/dL lower than your average %s level of %.1f mg/dL.",
			-diff, reading.MealStatus, avg)
	}
}
