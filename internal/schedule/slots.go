package schedule

import (
	"time"

	"github.com/ent0n29/penny/internal/integrations"
)

// Slot is one free candidate meeting window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SlotConfig bounds the slot search.
type SlotConfig struct {
	Duration       time.Duration
	DaysToScan     int
	Step           time.Duration
	WorkStartHour  int
	WorkEndHour    int
	MaxSuggestions int
}

func (c SlotConfig) withDefaults() SlotConfig {
	if c.Duration <= 0 {
		c.Duration = 45 * time.Minute
	}
	if c.DaysToScan <= 0 {
		c.DaysToScan = 3
	}
	if c.Step <= 0 {
		c.Step = 15 * time.Minute
	}
	if c.WorkEndHour <= 0 {
		c.WorkStartHour, c.WorkEndHour = 9, 17
	}
	if c.MaxSuggestions <= 0 {
		c.MaxSuggestions = 3
	}
	return c
}

// BusyFunc reports the busy intervals between dayStart and dayEnd.
type BusyFunc func(dayStart, dayEnd time.Time) ([]integrations.Interval, error)

// FindOpenSlots walks each day of the scan horizon in fixed increments and
// collects windows that do not overlap any busy interval. On day zero the
// walk starts no earlier than the desired time; later days start at the
// beginning of the working window. The search stops as soon as the maximum
// number of suggestions has been collected.
func FindOpenSlots(desired time.Time, cfg SlotConfig, busyFor BusyFunc) ([]Slot, error) {
	cfg = cfg.withDefaults()

	var suggestions []Slot
	for d := 0; d < cfg.DaysToScan && len(suggestions) < cfg.MaxSuggestions; d++ {
		day := desired.AddDate(0, 0, d)
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), cfg.WorkStartHour, 0, 0, 0, day.Location())
		dayEnd := time.Date(day.Year(), day.Month(), day.Day(), cfg.WorkEndHour, 0, 0, 0, day.Location())

		busy, err := busyFor(dayStart, dayEnd)
		if err != nil {
			return nil, err
		}

		cursor := dayStart
		if d == 0 && desired.After(cursor) {
			cursor = desired
		}

		for !cursor.Add(cfg.Duration).After(dayEnd) && len(suggestions) < cfg.MaxSuggestions {
			slotEnd := cursor.Add(cfg.Duration)
			if !overlapsAny(busy, cursor, slotEnd) {
				suggestions = append(suggestions, Slot{Start: cursor, End: slotEnd})
			}
			cursor = cursor.Add(cfg.Step)
		}
	}
	return suggestions, nil
}

func overlapsAny(busy []integrations.Interval, start, end time.Time) bool {
	for _, iv := range busy {
		if iv.Overlaps(start, end) {
			return true
		}
	}
	return false
}
