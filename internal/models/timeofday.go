package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	TimeLayout = "15:04"

	MinutesPerDay = 24 * 60
)

var ErrInvalidTimeOfDay = errors.New("invalid time of day")

// TimeOfDay is a 24h wall-clock time with minute granularity.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	t := TimeOfDay{Hour: hour, Minute: minute}
	if !t.Valid() {
		return TimeOfDay{}, fmt.Errorf("%w: %d:%d", ErrInvalidTimeOfDay, hour, minute)
	}
	return t, nil
}

// Valid reports whether the fields are within a single 24h day.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

// MustTimeOfDay is NewTimeOfDay for constants known to be valid.
func MustTimeOfDay(hour, minute int) TimeOfDay {
	t, err := NewTimeOfDay(hour, minute)
	if err != nil {
		panic(err)
	}
	return t
}

// TimeOfDayFromMinutes wraps total into a single day.
func TimeOfDayFromMinutes(total int) TimeOfDay {
	total %= MinutesPerDay
	if total < 0 {
		total += MinutesPerDay
	}
	return TimeOfDay{Hour: total / 60, Minute: total % 60}
}

// ParseTimeOfDay accepts "H:MM" and "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(mm) != 2 || !isDigits(hh) || !isDigits(mm) {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return NewTimeOfDay(h, m)
}

// isDigits: Atoi сам по себе пропускает знак.
func isDigits(s string) bool {
	if s == "" || len(s) > 2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (t TimeOfDay) TotalMinutes() int {
	return t.Hour*60 + t.Minute
}

// Add returns the wall-clock time minutes later. Meetings never cross midnight,
// so the result simply wraps.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return TimeOfDayFromMinutes(t.TotalMinutes() + minutes)
}

func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.TotalMinutes() < other.TotalMinutes()
}

func (t TimeOfDay) After(other TimeOfDay) bool {
	return t.TotalMinutes() > other.TotalMinutes()
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UnmarshalYAML lets config files spell times as "10:00".
func (t *TimeOfDay) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
