package models

import "fmt"

// Duration is a meeting length in minutes.
type Duration int

func (d Duration) String() string {
	return fmt.Sprintf("%d minutes", int(d))
}

// TimeSlot pairs a start time with a duration; the end is always derived.
type TimeSlot struct {
	Start    TimeOfDay `json:"start"`
	Duration Duration  `json:"duration"`
}

func NewTimeSlot(start TimeOfDay, duration Duration) TimeSlot {
	return TimeSlot{Start: start, Duration: duration}
}

func (s TimeSlot) End() TimeOfDay {
	return s.Start.Add(int(s.Duration))
}

// Label formats the slot as "HH:MM-HH:MM".
func (s TimeSlot) Label() string {
	return s.Start.String() + "-" + s.End().String()
}

// SlotView is the read model the calendar front-end renders.
type SlotView struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Duration int    `json:"duration"`
}

func (s TimeSlot) View() SlotView {
	return SlotView{
		Start:    s.Start.String(),
		End:      s.End().String(),
		Duration: int(s.Duration),
	}
}
