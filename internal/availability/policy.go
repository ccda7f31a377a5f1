package availability

import (
	"fmt"
	"sort"

	"consultbook/internal/models"
)

// PolicyKind selects how candidate start times are produced.
type PolicyKind string

const (
	PolicyFixedList      PolicyKind = "fixed_list"
	PolicyGeneratedRange PolicyKind = "generated_range"
)

// ClosingCheck selects how a slot end is compared against closing time.
type ClosingCheck string

const (
	// ClosingExact compares end and closing to the minute.
	ClosingExact ClosingCheck = "exact"
	// ClosingHour compares hours only, so 17:30 still fits a 17:00 close.
	ClosingHour ClosingCheck = "hour"
)

// Policy describes the business window and the slot strategy.
type Policy struct {
	Kind             PolicyKind
	FixedSlots       []models.TimeOfDay
	Opening          models.TimeOfDay
	Closing          models.TimeOfDay
	StepMinutes      int
	AllowedDurations []models.Duration
	DefaultDuration  models.Duration
	ClosingCheck     ClosingCheck
}

// FixedListPolicy offers the given start times for a single meeting length.
func FixedListPolicy(slots []models.TimeOfDay, closing models.TimeOfDay, duration models.Duration) Policy {
	return Policy{
		Kind:             PolicyFixedList,
		FixedSlots:       slots,
		Closing:          closing,
		AllowedDurations: []models.Duration{duration},
		DefaultDuration:  duration,
		ClosingCheck:     ClosingExact,
	}
}

// GeneratedRangePolicy enumerates starts from opening to closing inclusive.
func GeneratedRangePolicy(opening, closing models.TimeOfDay, step int, durations []models.Duration) Policy {
	p := Policy{
		Kind:             PolicyGeneratedRange,
		Opening:          opening,
		Closing:          closing,
		StepMinutes:      step,
		AllowedDurations: durations,
		ClosingCheck:     ClosingExact,
	}
	if len(durations) > 0 {
		p.DefaultDuration = durations[0]
	}
	return p
}

// normalize validates the policy and returns a copy with sorted, de-duplicated
// fixed slots and durations.
func (p Policy) normalize() (Policy, error) {
	if len(p.AllowedDurations) == 0 {
		return p, fmt.Errorf("%w: no allowed durations", ErrInvalidPolicy)
	}
	durations := make([]models.Duration, 0, len(p.AllowedDurations))
	seen := make(map[models.Duration]bool, len(p.AllowedDurations))
	for _, d := range p.AllowedDurations {
		if d <= 0 || int(d) >= models.MinutesPerDay {
			return p, fmt.Errorf("%w: duration %d out of range", ErrInvalidPolicy, d)
		}
		if !seen[d] {
			seen[d] = true
			durations = append(durations, d)
		}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p.AllowedDurations = durations

	if p.DefaultDuration == 0 {
		p.DefaultDuration = durations[0]
	}
	if !seen[p.DefaultDuration] {
		return p, fmt.Errorf("%w: default duration %d is not allowed", ErrInvalidPolicy, p.DefaultDuration)
	}

	switch p.ClosingCheck {
	case "":
		p.ClosingCheck = ClosingExact
	case ClosingExact, ClosingHour:
	default:
		return p, fmt.Errorf("%w: unknown closing check %q", ErrInvalidPolicy, p.ClosingCheck)
	}

	if !p.Closing.Valid() {
		return p, fmt.Errorf("%w: closing %d:%d out of range", ErrInvalidPolicy, p.Closing.Hour, p.Closing.Minute)
	}

	switch p.Kind {
	case PolicyFixedList:
		if len(p.FixedSlots) == 0 {
			return p, fmt.Errorf("%w: fixed list is empty", ErrInvalidPolicy)
		}
		for _, s := range p.FixedSlots {
			if !s.Valid() {
				return p, fmt.Errorf("%w: slot %d:%d out of range", ErrInvalidPolicy, s.Hour, s.Minute)
			}
		}
		slots := append([]models.TimeOfDay(nil), p.FixedSlots...)
		sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
		out := slots[:0]
		for i, s := range slots {
			if i > 0 && s == slots[i-1] {
				continue
			}
			out = append(out, s)
		}
		p.FixedSlots = out
	case PolicyGeneratedRange:
		if p.StepMinutes <= 0 {
			return p, fmt.Errorf("%w: step must be positive", ErrInvalidPolicy)
		}
		if !p.Opening.Valid() {
			return p, fmt.Errorf("%w: opening %d:%d out of range", ErrInvalidPolicy, p.Opening.Hour, p.Opening.Minute)
		}
		if p.Closing.Before(p.Opening) {
			return p, fmt.Errorf("%w: closing %s before opening %s", ErrInvalidPolicy, p.Closing, p.Opening)
		}
	default:
		return p, fmt.Errorf("%w: unknown policy %q", ErrInvalidPolicy, p.Kind)
	}

	return p, nil
}

// candidates returns the nominal start times, ascending.
func (p Policy) candidates() []models.TimeOfDay {
	if p.Kind == PolicyFixedList {
		return append([]models.TimeOfDay(nil), p.FixedSlots...)
	}

	open := p.Opening.TotalMinutes()
	closing := p.Closing.TotalMinutes()
	out := make([]models.TimeOfDay, 0, (closing-open)/p.StepMinutes+1)
	for m := open; m <= closing; m += p.StepMinutes {
		out = append(out, models.TimeOfDayFromMinutes(m))
	}
	return out
}

// Allows reports whether d is one of the configured meeting lengths.
func (p Policy) Allows(d models.Duration) bool {
	for _, allowed := range p.AllowedDurations {
		if allowed == d {
			return true
		}
	}
	return false
}

// Validate checks the policy without building an engine.
func (p Policy) Validate() error {
	_, err := p.normalize()
	return err
}
