package services

import (
	"context"
	"errors"
	"time"

	"github.com/slotlinehq/slotline/internal/scheduling/domain"
)

var (
	ErrInvalidRange        = errors.New("range end must be after range start")
	ErrInvalidTimeOfDay    = errors.New("invalid time-of-day preference")
	ErrNoCandidatesInRange = errors.New("no candidate slots in the requested range")
)

// TimeOfDay is the invitee's time-of-day preference for candidate slots.
type TimeOfDay string

const (
	TimeOfDayAny       TimeOfDay = "any"
	TimeOfDayMorning   TimeOfDay = "morning"
	TimeOfDayAfternoon TimeOfDay = "afternoon"
	TimeOfDayEvening   TimeOfDay = "evening"
)

// IsValid checks if the preference is supported.
func (t TimeOfDay) IsValid() bool {
	switch t {
	case TimeOfDayAny, TimeOfDayMorning, TimeOfDayAfternoon, TimeOfDayEvening:
		return true
	default:
		return false
	}
}

// CandidateRequest describes the window to generate candidate slots in.
type CandidateRequest struct {
	RangeStart time.Time
	RangeEnd   time.Time
	Prefer     TimeOfDay
	Duration   time.Duration
	MaxSlots   int
}

// CandidateGenerator produces a finite ordered sequence of proposed slots.
type CandidateGenerator interface {
	Generate(ctx context.Context, req CandidateRequest) ([]domain.SlotRange, error)
}

// GeneratorConfig configures the default candidate generator.
type GeneratorConfig struct {
	SlotDuration time.Duration // used when the request carries none
	MaxSlots     int           // used when the request carries none
	SkipWeekends bool
}

// DefaultGeneratorConfig returns sensible defaults.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		SlotDuration: time.Hour,
		MaxSlots:     5,
		SkipWeekends: true,
	}
}

// BusinessHoursGenerator generates candidate slots by stepping through the
// requested date range one day at a time and placing slots at the start of
// the preferred time-of-day window.
type BusinessHoursGenerator struct {
	config GeneratorConfig
}

// NewBusinessHoursGenerator creates a new generator.
func NewBusinessHoursGenerator(config GeneratorConfig) *BusinessHoursGenerator {
	return &BusinessHoursGenerator{config: config}
}

// windowStartHour maps a time-of-day preference to the first candidate hour.
func windowStartHour(prefer TimeOfDay) int {
	switch prefer {
	case TimeOfDayMorning:
		return 9
	case TimeOfDayAfternoon:
		return 13
	case TimeOfDayEvening:
		return 18
	default:
		return 10
	}
}

// Generate produces candidate slots honoring the range and preference.
func (g *BusinessHoursGenerator) Generate(_ context.Context, req CandidateRequest) ([]domain.SlotRange, error) {
	if !req.RangeEnd.After(req.RangeStart) {
		return nil, ErrInvalidRange
	}
	if !req.Prefer.IsValid() {
		return nil, ErrInvalidTimeOfDay
	}

	duration := req.Duration
	if duration <= 0 {
		duration = g.config.SlotDuration
	}
	maxSlots := req.MaxSlots
	if maxSlots <= 0 {
		maxSlots = g.config.MaxSlots
	}

	hour := windowStartHour(req.Prefer)
	day := time.Date(req.RangeStart.Year(), req.RangeStart.Month(), req.RangeStart.Day(), 0, 0, 0, 0, req.RangeStart.Location())

	slots := make([]domain.SlotRange, 0, maxSlots)
	for !day.After(req.RangeEnd) && len(slots) < maxSlots {
		if g.config.SkipWeekends {
			if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
				day = day.AddDate(0, 0, 1)
				continue
			}
		}

		start := day.Add(time.Duration(hour) * time.Hour)
		end := start.Add(duration)
		if !start.Before(req.RangeStart) && !end.After(req.RangeEnd) {
			slots = append(slots, domain.SlotRange{Start: start, End: end})
		}

		day = day.AddDate(0, 0, 1)
	}

	if len(slots) == 0 {
		return nil, ErrNoCandidatesInRange
	}
	return slots, nil
}
