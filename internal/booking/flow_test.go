package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"consultbook/internal/availability"
	"consultbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) SubmitBooking(ctx context.Context, req models.BookingRequest) (*models.Confirmation, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Confirmation), args.Error(1)
}

// Monday 19 Oct 2026.
var now = time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)

func tod(h, m int) models.TimeOfDay {
	return models.MustTimeOfDay(h, m)
}

func date(day int) models.CalendarDate {
	return models.NewCalendarDate(2026, time.October, day)
}

func testEngine(t *testing.T, at time.Time) *availability.Engine {
	t.Helper()
	p := availability.GeneratedRangePolicy(tod(10, 0), tod(17, 0), 30, []models.Duration{30, 60, 90, 120})
	e, err := availability.NewEngine(p, availability.FixedClock(at), time.UTC)
	require.NoError(t, err)
	return e
}

func validContact() models.Contact {
	return models.Contact{
		Name:    "Anna Petrova",
		Email:   "anna@example.com",
		Company: "Acme",
		Message: "Let's talk about the integration",
	}
}

func readyFlow(t *testing.T, sub Submitter) *Flow {
	t.Helper()
	f := NewFlow(testEngine(t, now), sub, Options{PreselectFirstDate: true})
	require.NoError(t, f.SelectDate(date(21)))
	require.NoError(t, f.SelectTime(tod(14, 0)))
	require.NoError(t, f.SetContact(validContact()))
	return f
}

func TestNewFlow(t *testing.T) {
	t.Run("PreselectsFirstSelectableDate", func(t *testing.T) {
		saturday := time.Date(2026, time.October, 24, 12, 0, 0, 0, time.UTC)
		f := NewFlow(testEngine(t, saturday), nil, Options{PreselectFirstDate: true})
		assert.Equal(t, "2026-10-26", f.Date().String())
		assert.Equal(t, models.StepDateChosen, f.Step())
		assert.Equal(t, models.Duration(30), f.Duration())
		_, ok := f.Time()
		assert.False(t, ok)
	})

	t.Run("Idle", func(t *testing.T) {
		f := NewFlow(testEngine(t, now), nil, Options{})
		assert.True(t, f.Date().IsZero())
		assert.Equal(t, models.StepIdle, f.Step())
		assert.Equal(t, models.OutcomeNone, f.LastOutcome())
	})
}

func TestFlow_SelectDate(t *testing.T) {
	f := NewFlow(testEngine(t, now), nil, Options{})

	err := f.SelectDate(date(24))
	assert.ErrorIs(t, err, ErrDateNotSelectable)
	assert.True(t, f.Date().IsZero())

	err = f.SelectDate(date(16))
	assert.ErrorIs(t, err, ErrDateNotSelectable)

	require.NoError(t, f.SelectDate(date(19)))
	assert.Equal(t, models.StepDateChosen, f.Step())

	require.NoError(t, f.SelectTime(tod(11, 0)))
	require.NoError(t, f.SelectDate(date(20)))
	start, ok := f.Time()
	require.True(t, ok)
	assert.Equal(t, "11:00", start.String())
	assert.Equal(t, models.StepDateAndTimeChosen, f.Step())
}

func TestFlow_SelectTime(t *testing.T) {
	t.Run("RequiresDate", func(t *testing.T) {
		f := NewFlow(testEngine(t, now), nil, Options{})
		assert.ErrorIs(t, f.SelectTime(tod(10, 0)), ErrDateRequired)
	})

	t.Run("RejectsUnofferedStart", func(t *testing.T) {
		f := NewFlow(testEngine(t, now), nil, Options{PreselectFirstDate: true})
		assert.ErrorIs(t, f.SelectTime(tod(10, 15)), ErrSlotUnavailable)
		assert.ErrorIs(t, f.SelectTime(tod(18, 0)), ErrSlotUnavailable)
		_, ok := f.Time()
		assert.False(t, ok)
	})

	t.Run("ClearTime", func(t *testing.T) {
		f := NewFlow(testEngine(t, now), nil, Options{PreselectFirstDate: true})
		require.NoError(t, f.SelectTime(tod(10, 0)))
		f.ClearTime()
		assert.Equal(t, models.StepDateChosen, f.Step())
	})
}

func TestFlow_SelectDuration(t *testing.T) {
	t.Run("ClearsTimeThatNoLongerFits", func(t *testing.T) {
		f := NewFlow(testEngine(t, now), nil, Options{PreselectFirstDate: true})
		require.NoError(t, f.SelectTime(tod(16, 30)))

		cleared, err := f.SelectDuration(60)
		require.NoError(t, err)
		assert.True(t, cleared)
		_, ok := f.Time()
		assert.False(t, ok)
		assert.Equal(t, models.Duration(60), f.Duration())
	})

	t.Run("KeepsTimeThatStillFits", func(t *testing.T) {
		f := NewFlow(testEngine(t, now), nil, Options{PreselectFirstDate: true})
		require.NoError(t, f.SelectTime(tod(10, 0)))

		cleared, err := f.SelectDuration(120)
		require.NoError(t, err)
		assert.False(t, cleared)
		start, ok := f.Time()
		require.True(t, ok)
		assert.Equal(t, "10:00", start.String())
	})

	t.Run("RejectsUnknownDuration", func(t *testing.T) {
		f := NewFlow(testEngine(t, now), nil, Options{})
		_, err := f.SelectDuration(45)
		assert.ErrorIs(t, err, availability.ErrInvalidDuration)
		assert.Equal(t, models.Duration(30), f.Duration())
	})
}

func TestFlow_AvailableSlotsFollowDuration(t *testing.T) {
	f := NewFlow(testEngine(t, now), nil, Options{PreselectFirstDate: true})

	slots, err := f.AvailableSlots()
	require.NoError(t, err)
	assert.Len(t, slots, 14)

	_, err = f.SelectDuration(60)
	require.NoError(t, err)
	slots, err = f.AvailableSlots()
	require.NoError(t, err)
	require.Len(t, slots, 13)
	assert.Equal(t, "16:00-17:00", slots[len(slots)-1].Label())
}

func TestFlow_Submit_Validation(t *testing.T) {
	t.Run("AllFieldsMissing", func(t *testing.T) {
		sub := new(MockSubmitter)
		f := NewFlow(testEngine(t, now), sub, Options{})

		conf, err := f.Submit(context.Background())
		assert.Nil(t, conf)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"date", "time", "name", "email", "message"}, verr.Missing)
		assert.Equal(t, "Please fill in all required fields", verr.UserMessage())
		assert.Equal(t, models.OutcomeValidationFailed, f.LastOutcome())
		sub.AssertNotCalled(t, "SubmitBooking", mock.Anything, mock.Anything)
	})

	t.Run("WhitespaceCountsAsMissing", func(t *testing.T) {
		sub := new(MockSubmitter)
		f := readyFlow(t, sub)
		c := validContact()
		c.Name = "   "
		require.NoError(t, f.SetContact(c))

		_, err := f.Submit(context.Background())
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"name"}, verr.Missing)
		sub.AssertNotCalled(t, "SubmitBooking", mock.Anything, mock.Anything)
	})

	t.Run("CompanyOptional", func(t *testing.T) {
		sub := new(MockSubmitter)
		sub.On("SubmitBooking", mock.Anything, mock.Anything).Return(&models.Confirmation{Reference: "r-1"}, nil).Once()
		f := readyFlow(t, sub)
		c := validContact()
		c.Company = ""
		require.NoError(t, f.SetContact(c))

		_, err := f.Submit(context.Background())
		assert.NoError(t, err)
		sub.AssertExpectations(t)
	})

	t.Run("InvalidEmail", func(t *testing.T) {
		sub := new(MockSubmitter)
		f := readyFlow(t, sub)
		c := validContact()
		c.Email = "not-an-email"
		require.NoError(t, f.SetContact(c))

		_, err := f.Submit(context.Background())
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Empty(t, verr.Missing)
		assert.Equal(t, []string{"email"}, verr.Invalid)
	})

	t.Run("StateUntouched", func(t *testing.T) {
		f := NewFlow(testEngine(t, now), new(MockSubmitter), Options{PreselectFirstDate: true})
		require.NoError(t, f.SelectTime(tod(12, 0)))
		before := f.Snapshot()

		_, err := f.Submit(context.Background())
		require.True(t, IsValidation(err))

		after := f.Snapshot()
		assert.Equal(t, before.Date, after.Date)
		assert.Equal(t, before.Time, after.Time)
		assert.Equal(t, before.Contact, after.Contact)
	})
}

func TestFlow_Submit_Success(t *testing.T) {
	sub := new(MockSubmitter)
	f := readyFlow(t, sub)

	expected := models.BookingRequest{
		Date:    date(21),
		Slot:    models.NewTimeSlot(tod(14, 0), 30),
		Contact: validContact(),
	}
	sub.On("SubmitBooking", mock.Anything, expected).
		Return(NewConfirmation("ref-42", expected, now), nil).Once()

	conf, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ref-42", conf.Reference)
	assert.Equal(t, "14:30", conf.End.String())
	assert.Contains(t, conf.Message, "30 minutes from 14:00 to 14:30")
	sub.AssertExpectations(t)

	// back to defaults
	assert.Equal(t, models.OutcomeConfirmed, f.LastOutcome())
	assert.Equal(t, "2026-10-19", f.Date().String())
	_, ok := f.Time()
	assert.False(t, ok)
	assert.Equal(t, models.Duration(30), f.Duration())
	assert.Equal(t, models.Contact{}, f.Contact())
}

func TestFlow_Submit_FillsMessage(t *testing.T) {
	sub := new(MockSubmitter)
	sub.On("SubmitBooking", mock.Anything, mock.Anything).Return(&models.Confirmation{Reference: "x"}, nil).Once()
	f := readyFlow(t, sub)

	conf, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Meeting request submitted! 30 minutes from 14:00 to 14:30. We'll get back to you within 24 hours.", conf.Message)
}

func TestFlow_Submit_SubmitterFailure(t *testing.T) {
	sub := new(MockSubmitter)
	boom := errors.New("sheets unavailable")
	sub.On("SubmitBooking", mock.Anything, mock.Anything).Return(nil, boom).Once()
	f := readyFlow(t, sub)

	conf, err := f.Submit(context.Background())
	assert.Nil(t, conf)
	assert.True(t, IsSubmission(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, models.OutcomeSubmissionFailed, f.LastOutcome())

	// input kept for retry
	assert.Equal(t, "2026-10-21", f.Date().String())
	start, ok := f.Time()
	require.True(t, ok)
	assert.Equal(t, "14:00", start.String())
	assert.Equal(t, validContact(), f.Contact())

	sub.On("SubmitBooking", mock.Anything, mock.Anything).Return(&models.Confirmation{Reference: "r"}, nil).Once()
	_, err = f.Submit(context.Background())
	assert.NoError(t, err)
	sub.AssertExpectations(t)
}

func TestFlow_Submit_NoReentry(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	calls := 0

	sub := SubmitterFunc(func(ctx context.Context, req models.BookingRequest) (*models.Confirmation, error) {
		calls++
		close(entered)
		<-release
		return NewConfirmation("r", req, now), nil
	})
	f := readyFlow(t, sub)

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background())
		done <- err
	}()

	<-entered
	assert.Equal(t, models.StepSubmitting, f.Step())
	_, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionInProgress)
	assert.ErrorIs(t, f.SelectDate(date(22)), ErrSubmissionInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, calls)
}

func TestFlow_SnapshotRestore(t *testing.T) {
	f := readyFlow(t, nil)
	_, err := f.SelectDuration(60)
	require.NoError(t, err)
	state := f.Snapshot()
	assert.Equal(t, models.StepDateAndTimeChosen, state.Step)

	g := NewFlow(testEngine(t, now), nil, Options{PreselectFirstDate: true})
	g.Restore(state)
	assert.Equal(t, state, g.Snapshot())

	t.Run("StaleDateFallsBack", func(t *testing.T) {
		nextWeek := now.AddDate(0, 0, 7)
		h := NewFlow(testEngine(t, nextWeek), nil, Options{PreselectFirstDate: true})
		h.Restore(state)
		assert.Equal(t, "2026-10-26", h.Date().String())
		_, ok := h.Time()
		assert.False(t, ok)
		assert.Equal(t, validContact(), h.Contact())
	})

	t.Run("UnknownDurationFallsBack", func(t *testing.T) {
		s := state
		s.Duration = 45
		h := NewFlow(testEngine(t, now), nil, Options{})
		h.Restore(s)
		assert.Equal(t, models.Duration(30), h.Duration())
	})
}
