package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"consultbook/internal/availability"
	"consultbook/internal/booking"
	"consultbook/internal/domain"
	"consultbook/internal/events"
	"consultbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const notifyTimeout = 15 * time.Second

// ConsultationSink принимает проверенную заявку: сохраняет её и раздаёт дальше.
// Only the store is required; sync and notifications are best effort.
type ConsultationSink struct {
	store        domain.ConsultationStore
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	notifier     domain.Notifier
	clock        availability.Clock
	newReference func() string
	logger       *zerolog.Logger

	pending sync.WaitGroup
}

func NewConsultationSink(
	store domain.ConsultationStore,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	notifier domain.Notifier,
	clock availability.Clock,
	logger *zerolog.Logger,
) *ConsultationSink {
	if clock == nil {
		clock = availability.SystemClock{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ConsultationSink{
		store:        store,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		notifier:     notifier,
		clock:        clock,
		newReference: uuid.NewString,
		logger:       logger,
	}
}

// SubmitBooking implements booking.Submitter.
func (s *ConsultationSink) SubmitBooking(ctx context.Context, req models.BookingRequest) (*models.Confirmation, error) {
	now := s.clock.Now().UTC()
	reference := s.newReference()

	c := models.ConsultationFromRequest(reference, req, now)
	if err := s.store.CreateConsultation(ctx, c); err != nil {
		s.logger.Error().Err(err).Str("reference", reference).Msg("failed to store consultation")
		return nil, fmt.Errorf("store consultation: %w", err)
	}

	s.logger.Info().
		Int64("consultation_id", c.ID).
		Str("reference", reference).
		Str("date", c.DateString()).
		Str("start", c.StartTime).
		Int("duration", c.Duration).
		Msg("consultation requested")

	if s.eventBus != nil {
		if err := s.eventBus.PublishJSON(events.EventConsultationRequested, events.PayloadFromConsultation(c)); err != nil {
			s.logger.Warn().Err(err).Str("reference", reference).Msg("failed to publish event")
		}
	}

	if s.sheetsWorker != nil {
		if err := s.sheetsWorker.EnqueueConsultation(ctx, c); err != nil {
			s.logger.Warn().Err(err).Int64("consultation_id", c.ID).Msg("failed to enqueue sheets sync")
		}
	}

	if s.notifier != nil {
		// Telegram may be slow; the visitor should not wait for it.
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
			defer cancel()
			if err := s.notifier.NotifyConsultation(nctx, c); err != nil {
				s.logger.Warn().Err(err).Int64("consultation_id", c.ID).Msg("manager notification failed")
			}
		}()
	}

	return booking.NewConfirmation(reference, req, now), nil
}

// Wait blocks until background notifications finish.
func (s *ConsultationSink) Wait() {
	s.pending.Wait()
}
