package models

import (
	"strings"
	"time"
)

// Contact holds the visitor's details from the booking form.
type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Message string `json:"message"`
}

// Normalize trims surrounding whitespace from every field.
func (c Contact) Normalize() Contact {
	return Contact{
		Name:    strings.TrimSpace(c.Name),
		Email:   strings.TrimSpace(c.Email),
		Company: strings.TrimSpace(c.Company),
		Message: strings.TrimSpace(c.Message),
	}
}

// BookingRequest is the validated payload handed to the submitter.
type BookingRequest struct {
	Date    CalendarDate `json:"date"`
	Slot    TimeSlot     `json:"slot"`
	Contact Contact      `json:"contact"`
}

func (r BookingRequest) End() TimeOfDay {
	return r.Slot.End()
}

// Confirmation is returned once a request has been handed off successfully.
type Confirmation struct {
	Reference   string         `json:"reference"`
	Request     BookingRequest `json:"request"`
	Start       TimeOfDay      `json:"start"`
	End         TimeOfDay      `json:"end"`
	Duration    Duration       `json:"duration"`
	SubmittedAt time.Time      `json:"submitted_at"`
	Message     string         `json:"message"`
}

// Consultation is a submitted booking request as stored.
type Consultation struct {
	ID        int64     `json:"id"`
	Reference string    `json:"reference"`
	Date      time.Time `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Duration  int       `json:"duration"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Company   string    `json:"company"`
	Message   string    `json:"message"`
	Status    string    `json:"status"` // new, contacted, closed
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConsultationFromRequest flattens a request into its stored form.
func ConsultationFromRequest(reference string, req BookingRequest, createdAt time.Time) *Consultation {
	return &Consultation{
		Reference: reference,
		Date:      req.Date.Time(time.UTC),
		StartTime: req.Slot.Start.String(),
		EndTime:   req.Slot.End().String(),
		Duration:  int(req.Slot.Duration),
		Name:      req.Contact.Name,
		Email:     req.Contact.Email,
		Company:   req.Contact.Company,
		Message:   req.Contact.Message,
		Status:    StatusNew,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// DateString returns the consultation day as YYYY-MM-DD.
func (c *Consultation) DateString() string {
	return c.Date.Format(DateLayout)
}
