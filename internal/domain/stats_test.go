package domain

import (
	"testing"
	"time"
)

func reading(level float64, status MealStatus) Reading {
	return Reading{
		GlucoseLevel: level,
		Date:         NewDate(2025, time.March, 1),
		MealStatus:   status,
	}
}

func TestComputeStatistics_Empty(t *testing.T) {
	stats := ComputeStatistics(nil)
	if stats.TotalReadings != 0 {
		t.Errorf("expected 0 total, got %d", stats.TotalReadings)
	}
	if stats.HasFasting || stats.HasPrandial {
		t.Error("empty history should have no categories")
	}
	if stats.AvgFasting != nil || stats.AvgPrandial != nil {
		t.Error("empty history should have no averages")
	}
}

func TestComputeStatistics_BothCategories(t *testing.T) {
	stats := ComputeStatistics([]Reading{
		reading(90, MealFasting),
		reading(110, MealFasting),
		reading(150, MealPrandial),
	})

	if stats.TotalReadings != 3 {
		t.Errorf("expected 3 total, got %d", stats.TotalReadings)
	}
	if !stats.HasFasting || !stats.HasPrandial {
		t.Errorf("expected both categories: %+v", stats)
	}
	if stats.AvgFasting == nil || *stats.AvgFasting != 100.0 {
		t.Errorf("expected avg fasting 100.0, got %v", stats.AvgFasting)
	}
	if stats.AvgPrandial == nil || *stats.AvgPrandial != 150.0 {
		t.Errorf("expected avg prandial 150.0, got %v", stats.AvgPrandial)
	}
}

func TestComputeStatistics_RoundsToOneDecimal(t *testing.T) {
	stats := ComputeStatistics([]Reading{
		reading(100, MealFasting),
		reading(101, MealFasting),
		reading(101, MealFasting),
	})
	if stats.AvgFasting == nil || *stats.AvgFasting != 100.7 {
		t.Errorf("expected avg fasting 100.7, got %v", stats.AvgFasting)
	}
}

func TestComputeStatistics_SingleCategory(t *testing.T) {
	stats := ComputeStatistics([]Reading{reading(130, MealPrandial)})
	if stats.HasFasting {
		t.Error("no fasting readings recorded")
	}
	if stats.AvgFasting != nil {
		t.Errorf("fasting average must be absent, got %v", *stats.AvgFasting)
	}
	if stats.AvgPrandial == nil || *stats.AvgPrandial != 130.0 {
		t.Errorf("expected avg prandial 130.0, got %v", stats.AvgPrandial)
	}
}
