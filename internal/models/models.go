package models

// FlowState is the serialisable snapshot of one visitor's booking flow.
type FlowState struct {
	SessionID   string       `json:"session_id"`
	Step        string       `json:"step"`
	Date        CalendarDate `json:"date"`
	Time        *TimeOfDay   `json:"time,omitempty"`
	Duration    Duration     `json:"duration"`
	Contact     Contact      `json:"contact"`
	LastOutcome string       `json:"last_outcome,omitempty"`
}

// HasDate reports whether a date is selected.
func (s *FlowState) HasDate() bool {
	return s != nil && !s.Date.IsZero()
}

// HasTime reports whether a start time is selected.
func (s *FlowState) HasTime() bool {
	return s != nil && s.Time != nil
}

// Slot returns the selected slot, if any.
func (s *FlowState) Slot() (TimeSlot, bool) {
	if !s.HasTime() {
		return TimeSlot{}, false
	}
	return NewTimeSlot(*s.Time, s.Duration), true
}

// DateEligibility tells the calendar whether a day can be picked.
type DateEligibility struct {
	Date       CalendarDate `json:"date"`
	Selectable bool         `json:"selectable"`
	Reason     string       `json:"reason,omitempty"` // weekend, past
}
