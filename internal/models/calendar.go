package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format of a CalendarDate.
const DateLayout = "2006-01-02"

// CalendarDate is a concrete day without time of day.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// NewCalendarDate normalises overflowing values (e.g. day 32) the same way time.Date does.
func NewCalendarDate(year int, month time.Month, day int) CalendarDate {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf truncates t to its day in t's own location.
func DateOf(t time.Time) CalendarDate {
	y, m, d := t.Date()
	return CalendarDate{Year: y, Month: m, Day: d}
}

func ParseCalendarDate(s string) (CalendarDate, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return CalendarDate{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

func (d CalendarDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Time returns midnight of the day in loc.
func (d CalendarDate) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d CalendarDate) Weekday() time.Weekday {
	return d.Time(time.UTC).Weekday()
}

func (d CalendarDate) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d CalendarDate) AddDays(n int) CalendarDate {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

func (d CalendarDate) Before(other CalendarDate) bool {
	return d.compare(other) < 0
}

func (d CalendarDate) After(other CalendarDate) bool {
	return d.compare(other) > 0
}

func (d CalendarDate) Equal(other CalendarDate) bool {
	return d.compare(other) == 0
}

func (d CalendarDate) compare(other CalendarDate) int {
	switch {
	case d.Year != other.Year:
		return d.Year - other.Year
	case d.Month != other.Month:
		return int(d.Month) - int(other.Month)
	default:
		return d.Day - other.Day
	}
}

func (d CalendarDate) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Long renders the date the way the booking summary shows it, e.g. "Monday, October 19, 2026".
func (d CalendarDate) Long() string {
	return d.Time(time.UTC).Format("Monday, January 2, 2006")
}

func (d CalendarDate) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.String())
}

func (d *CalendarDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = CalendarDate{}
		return nil
	}
	parsed, err := ParseCalendarDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
