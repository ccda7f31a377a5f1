package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"consultbook/internal/availability"
	"consultbook/internal/events"
	"consultbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var submittedAt = time.Date(2026, time.October, 19, 9, 30, 0, 0, time.UTC)

func sampleRequest() models.BookingRequest {
	return models.BookingRequest{
		Date: models.NewCalendarDate(2026, time.October, 21),
		Slot: models.NewTimeSlot(models.MustTimeOfDay(14, 0), 60),
		Contact: models.Contact{
			Name:    "Anna",
			Email:   "anna@example.com",
			Message: "Hello",
		},
	}
}

func TestConsultationSink_Submit(t *testing.T) {
	store := new(mockStore)
	worker := new(mockSyncWorker)
	notifier := new(mockNotifier)
	bus := &recordingBus{}

	sink := NewConsultationSink(store, bus, worker, notifier, availability.FixedClock(submittedAt), nil)
	sink.newReference = func() string { return "ref-fixed" }

	store.On("CreateConsultation", mock.Anything, mock.MatchedBy(func(c *models.Consultation) bool {
		return c.Reference == "ref-fixed" && c.StartTime == "14:00" && c.EndTime == "15:00" &&
			c.Duration == 60 && c.DateString() == "2026-10-21" && c.Status == models.StatusNew
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Consultation).ID = 42
	}).Return(nil).Once()
	worker.On("EnqueueConsultation", mock.Anything, mock.MatchedBy(func(c *models.Consultation) bool {
		return c.ID == 42
	})).Return(nil).Once()
	notifier.On("NotifyConsultation", mock.Anything, mock.Anything).Return(errors.New("telegram down")).Once()

	conf, err := sink.SubmitBooking(context.Background(), sampleRequest())
	require.NoError(t, err)
	sink.Wait()

	assert.Equal(t, "ref-fixed", conf.Reference)
	assert.Equal(t, "14:00", conf.Start.String())
	assert.Equal(t, "15:00", conf.End.String())
	assert.Equal(t, submittedAt, conf.SubmittedAt)
	assert.Contains(t, conf.Message, "60 minutes from 14:00 to 15:00")
	assert.Equal(t, []string{events.EventConsultationRequested}, bus.Types())

	store.AssertExpectations(t)
	worker.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestConsultationSink_StoreFailure(t *testing.T) {
	store := new(mockStore)
	worker := new(mockSyncWorker)
	bus := &recordingBus{}
	sink := NewConsultationSink(store, bus, worker, nil, availability.FixedClock(submittedAt), nil)

	store.On("CreateConsultation", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	conf, err := sink.SubmitBooking(context.Background(), sampleRequest())
	assert.Error(t, err)
	assert.Nil(t, conf)
	assert.Empty(t, bus.Types())
	worker.AssertNotCalled(t, "EnqueueConsultation", mock.Anything, mock.Anything)
}

func TestConsultationSink_SyncFailureIsBestEffort(t *testing.T) {
	store := new(mockStore)
	worker := new(mockSyncWorker)
	sink := NewConsultationSink(store, nil, worker, nil, nil, nil)

	store.On("CreateConsultation", mock.Anything, mock.Anything).Return(nil).Once()
	worker.On("EnqueueConsultation", mock.Anything, mock.Anything).Return(errors.New("queue down")).Once()

	conf, err := sink.SubmitBooking(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, conf.Reference)
}
