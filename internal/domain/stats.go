package domain

import "math"

// Statistics summarizes a session's confirmed readings. It is derived on
// demand and never stored.
type Statistics struct {
	TotalReadings int      `json:"total_readings"`
	HasFasting    bool     `json:"has_fasting"`
	HasPrandial   bool     `json:"has_prandial"`
	AvgFasting    *float64 `json:"avg_fasting,omitempty"`
	AvgPrandial   *float64 `json:"avg_prandial,omitempty"`
}

// ComputeStatistics derives aggregate statistics from confirmed readings.
func ComputeStatistics(readings []Reading) Statistics {
	stats := Statistics{TotalReadings: len(readings)}

	var fastingSum, prandialSum float64
	var fastingCount, prandialCount int
	for _, r := range readings {
		switch r.MealStatus {
		case MealFasting:
			fastingSum += r.GlucoseLevel
			fastingCount++
		case MealPrandial:
			prandialSum += r.GlucoseLevel
			prandialCount++
		}
	}

	if fastingCount > 0 {
		stats.HasFasting = true
		avg := round1(fastingSum / float64(fastingCount))
		stats.AvgFasting = &avg
	}
	if prandialCount > 0 {
		stats.HasPrandial = true
		avg := round1(prandialSum / float64(prandialCount))
		stats.AvgPrandial = &avg
	}

	return stats
}

// round1 rounds to one decimal place, matching the precision readings are
// reported with.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
