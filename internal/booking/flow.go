package booking

import (
	"context"
	"fmt"
	"net/mail"
	"sync/atomic"
	"time"

	"consultbook/internal/availability"
	"consultbook/internal/models"
)

// Submitter receives a complete, validated booking request.
type Submitter interface {
	SubmitBooking(ctx context.Context, req models.BookingRequest) (*models.Confirmation, error)
}

// SubmitterFunc adapts a plain function to Submitter.
type SubmitterFunc func(ctx context.Context, req models.BookingRequest) (*models.Confirmation, error)

func (f SubmitterFunc) SubmitBooking(ctx context.Context, req models.BookingRequest) (*models.Confirmation, error) {
	return f(ctx, req)
}

type Options struct {
	// PreselectFirstDate starts (and resets) the flow on the first selectable date.
	PreselectFirstDate bool
}

// Flow is one visitor's booking selection. It is not meant to be shared
// between visitors; the submitting flag only guards against re-entrant submits.
type Flow struct {
	engine    *availability.Engine
	submitter Submitter
	opts      Options

	date        models.CalendarDate
	start       *models.TimeOfDay
	duration    models.Duration
	contact     models.Contact
	lastOutcome string

	submitting atomic.Bool
}

func NewFlow(engine *availability.Engine, submitter Submitter, opts Options) *Flow {
	f := &Flow{
		engine:    engine,
		submitter: submitter,
		opts:      opts,
	}
	f.reset()
	return f
}

// reset puts selection and contact back to their initial defaults.
func (f *Flow) reset() {
	f.date = models.CalendarDate{}
	if f.opts.PreselectFirstDate {
		f.date = f.engine.FirstSelectableDate()
	}
	f.start = nil
	f.duration = f.engine.Policy().DefaultDuration
	f.contact = models.Contact{}
}

func (f *Flow) Step() string {
	switch {
	case f.submitting.Load():
		return models.StepSubmitting
	case f.date.IsZero():
		return models.StepIdle
	case f.start == nil:
		return models.StepDateChosen
	default:
		return models.StepDateAndTimeChosen
	}
}

func (f *Flow) Date() models.CalendarDate { return f.date }

func (f *Flow) Duration() models.Duration { return f.duration }

func (f *Flow) Contact() models.Contact { return f.contact }

func (f *Flow) LastOutcome() string { return f.lastOutcome }

// Time returns the selected start time.
func (f *Flow) Time() (models.TimeOfDay, bool) {
	if f.start == nil {
		return models.TimeOfDay{}, false
	}
	return *f.start, true
}

func (f *Flow) SelectDate(d models.CalendarDate) error {
	if f.submitting.Load() {
		return ErrSubmissionInProgress
	}
	if !f.engine.IsSelectable(d) {
		return fmt.Errorf("%w: %s", ErrDateNotSelectable, d)
	}
	f.date = d
	f.dropUnavailableTime()
	return nil
}

func (f *Flow) SelectTime(t models.TimeOfDay) error {
	if f.submitting.Load() {
		return ErrSubmissionInProgress
	}
	if f.date.IsZero() {
		return ErrDateRequired
	}
	ok, err := f.engine.IsAvailable(t, f.duration)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s for %d minutes", ErrSlotUnavailable, t, int(f.duration))
	}
	f.start = &t
	return nil
}

// ClearTime drops the selected start time.
func (f *Flow) ClearTime() {
	f.start = nil
}

// SelectDuration switches the meeting length and reports whether the selected
// start time had to be cleared because it no longer fits.
func (f *Flow) SelectDuration(d models.Duration) (bool, error) {
	if f.submitting.Load() {
		return false, ErrSubmissionInProgress
	}
	if err := f.engine.ValidateDuration(d); err != nil {
		return false, err
	}
	f.duration = d
	return f.dropUnavailableTime(), nil
}

func (f *Flow) SetContact(c models.Contact) error {
	if f.submitting.Load() {
		return ErrSubmissionInProgress
	}
	f.contact = c.Normalize()
	return nil
}

// AvailableSlots is always derived from the current duration.
func (f *Flow) AvailableSlots() ([]models.TimeSlot, error) {
	starts, err := f.engine.AvailableSlots(f.duration)
	if err != nil {
		return nil, err
	}
	out := make([]models.TimeSlot, len(starts))
	for i, s := range starts {
		out[i] = models.NewTimeSlot(s, f.duration)
	}
	return out, nil
}

func (f *Flow) dropUnavailableTime() bool {
	if f.start == nil {
		return false
	}
	ok, err := f.engine.IsAvailable(*f.start, f.duration)
	if err != nil || !ok {
		f.start = nil
		return true
	}
	return false
}

// Submit validates the selection and hands it to the submitter. Validation and
// submitter failures keep all input; success resets the flow.
func (f *Flow) Submit(ctx context.Context) (*models.Confirmation, error) {
	if !f.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmissionInProgress
	}
	defer f.submitting.Store(false)

	req, verr := f.request()
	if verr != nil {
		f.lastOutcome = models.OutcomeValidationFailed
		return nil, verr
	}

	conf, err := f.submitter.SubmitBooking(ctx, req)
	if err != nil {
		f.lastOutcome = models.OutcomeSubmissionFailed
		return nil, &SubmissionError{Err: err}
	}
	if conf == nil {
		conf = NewConfirmation("", req, time.Now())
	}
	if conf.Message == "" {
		conf.Message = ConfirmationMessage(req)
	}

	f.reset()
	f.lastOutcome = models.OutcomeConfirmed
	return conf, nil
}

// request assembles the payload or explains what is missing.
func (f *Flow) request() (models.BookingRequest, *ValidationError) {
	verr := &ValidationError{}
	c := f.contact.Normalize()

	if f.date.IsZero() {
		verr.Missing = append(verr.Missing, models.FieldDate)
	}
	if f.start == nil {
		verr.Missing = append(verr.Missing, models.FieldTime)
	}
	if c.Name == "" {
		verr.Missing = append(verr.Missing, models.FieldName)
	}
	if c.Email == "" {
		verr.Missing = append(verr.Missing, models.FieldEmail)
	}
	if c.Message == "" {
		verr.Missing = append(verr.Missing, models.FieldMessage)
	}

	// A restored session may point at a day that has since passed.
	if !f.date.IsZero() && !f.engine.IsSelectable(f.date) {
		verr.Invalid = append(verr.Invalid, models.FieldDate)
	}
	if f.start != nil {
		if ok, err := f.engine.IsAvailable(*f.start, f.duration); err != nil || !ok {
			verr.Invalid = append(verr.Invalid, models.FieldTime)
		}
	}
	if c.Email != "" && !validEmail(c.Email) {
		verr.Invalid = append(verr.Invalid, models.FieldEmail)
	}

	if len(verr.Missing) > 0 || len(verr.Invalid) > 0 {
		return models.BookingRequest{}, verr
	}

	return models.BookingRequest{
		Date:    f.date,
		Slot:    models.NewTimeSlot(*f.start, f.duration),
		Contact: c,
	}, nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// Snapshot captures the flow for storage between requests.
func (f *Flow) Snapshot() models.FlowState {
	state := models.FlowState{
		Step:        f.Step(),
		Date:        f.date,
		Duration:    f.duration,
		Contact:     f.contact,
		LastOutcome: f.lastOutcome,
	}
	if f.start != nil {
		t := *f.start
		state.Time = &t
	}
	return state
}

// Restore loads a stored snapshot. Values that no longer satisfy the current
// rules (a past date, a removed duration) fall back to defaults.
func (f *Flow) Restore(state models.FlowState) {
	f.reset()
	f.lastOutcome = state.LastOutcome
	f.contact = state.Contact

	if f.engine.ValidateDuration(state.Duration) == nil {
		f.duration = state.Duration
	}
	if state.Date.IsZero() || !f.engine.IsSelectable(state.Date) {
		return
	}
	f.date = state.Date
	if state.Time != nil {
		t := *state.Time
		f.start = &t
		f.dropUnavailableTime()
	}
}

// NewConfirmation builds the confirmation for a handed-off request.
func NewConfirmation(reference string, req models.BookingRequest, at time.Time) *models.Confirmation {
	return &models.Confirmation{
		Reference:   reference,
		Request:     req,
		Start:       req.Slot.Start,
		End:         req.Slot.End(),
		Duration:    req.Slot.Duration,
		SubmittedAt: at,
		Message:     ConfirmationMessage(req),
	}
}

// ConfirmationMessage is the success notice shown to the visitor.
func ConfirmationMessage(req models.BookingRequest) string {
	return fmt.Sprintf("Meeting request submitted! %d minutes from %s to %s. We'll get back to you within 24 hours.",
		int(req.Slot.Duration), req.Slot.Start, req.Slot.End())
}
