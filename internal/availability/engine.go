package availability

import (
	"fmt"
	"time"

	"consultbook/internal/models"
)

const (
	ReasonWeekend = "weekend"
	ReasonPast    = "past"
)

// Engine answers which dates and start times can be booked.
type Engine struct {
	policy Policy
	clock  Clock
	loc    *time.Location
}

// NewEngine validates policy. A nil clock means the system clock and a nil
// location means time.Local.
func NewEngine(policy Policy, clock Clock, loc *time.Location) (*Engine, error) {
	p, err := policy.normalize()
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Engine{policy: p, clock: clock, loc: loc}, nil
}

func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

// Today is the clock's current day in the engine's location.
func (e *Engine) Today() models.CalendarDate {
	return models.DateOf(e.clock.Now().In(e.loc))
}

// IsSelectable: weekdays from today on. Today stays selectable even after
// closing time.
func (e *Engine) IsSelectable(date models.CalendarDate) bool {
	return e.ineligibility(date) == ""
}

func (e *Engine) ineligibility(date models.CalendarDate) string {
	if date.IsWeekend() {
		return ReasonWeekend
	}
	if date.Before(e.Today()) {
		return ReasonPast
	}
	return ""
}

// FirstSelectableDate scans forward from today.
func (e *Engine) FirstSelectableDate() models.CalendarDate {
	d := e.Today()
	for !e.IsSelectable(d) {
		d = d.AddDays(1)
	}
	return d
}

// SelectableDates lists eligibility for days consecutive days starting at from.
func (e *Engine) SelectableDates(from models.CalendarDate, days int) []models.DateEligibility {
	if days <= 0 {
		return []models.DateEligibility{}
	}
	out := make([]models.DateEligibility, 0, days)
	for i := 0; i < days; i++ {
		d := from.AddDays(i)
		reason := e.ineligibility(d)
		out = append(out, models.DateEligibility{
			Date:       d,
			Selectable: reason == "",
			Reason:     reason,
		})
	}
	return out
}

// ValidateDuration rejects lengths outside the configured set.
func (e *Engine) ValidateDuration(d models.Duration) error {
	if !e.policy.Allows(d) {
		return fmt.Errorf("%w: %d minutes (allowed %v)", ErrInvalidDuration, int(d), e.policy.AllowedDurations)
	}
	return nil
}

// CandidateSlots returns the nominal start times before duration trimming.
func (e *Engine) CandidateSlots(d models.Duration) ([]models.TimeOfDay, error) {
	if err := e.ValidateDuration(d); err != nil {
		return nil, err
	}
	return e.policy.candidates(), nil
}

// AvailableSlots returns the candidates whose meeting still ends by closing time.
func (e *Engine) AvailableSlots(d models.Duration) ([]models.TimeOfDay, error) {
	candidates, err := e.CandidateSlots(d)
	if err != nil {
		return nil, err
	}
	return AvailableSlots(candidates, d, e.policy.Closing, e.policy.ClosingCheck), nil
}

// IsAvailable reports whether start is offered for duration d.
func (e *Engine) IsAvailable(start models.TimeOfDay, d models.Duration) (bool, error) {
	slots, err := e.AvailableSlots(d)
	if err != nil {
		return false, err
	}
	for _, s := range slots {
		if s == start {
			return true, nil
		}
	}
	return false, nil
}

// AvailableSlots filters candidates by end time against closing. Order is
// preserved. A meeting that would run past midnight never fits.
func AvailableSlots(candidates []models.TimeOfDay, d models.Duration, closing models.TimeOfDay, check ClosingCheck) []models.TimeOfDay {
	out := make([]models.TimeOfDay, 0, len(candidates))
	for _, start := range candidates {
		end := start.TotalMinutes() + int(d)
		if end >= models.MinutesPerDay {
			continue
		}
		fits := end <= closing.TotalMinutes()
		if check == ClosingHour {
			fits = end/60 <= closing.Hour
		}
		if fits {
			out = append(out, start)
		}
	}
	return out
}

// EndTime is start plus duration in minute-of-day arithmetic.
func EndTime(start models.TimeOfDay, d models.Duration) models.TimeOfDay {
	return start.Add(int(d))
}
