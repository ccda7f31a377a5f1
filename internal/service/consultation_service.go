package service

import (
	"context"
	"fmt"
	"time"

	"consultbook/internal/domain"
	"consultbook/internal/events"
	"consultbook/internal/models"

	"github.com/rs/zerolog"
)

// ConsultationService is the manager-side view of stored requests.
type ConsultationService struct {
	store        domain.ConsultationStore
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	maxRangeDays int
	logger       *zerolog.Logger
}

func NewConsultationService(store domain.ConsultationStore, eventBus domain.EventPublisher, sheetsWorker domain.SyncWorker, maxRangeDays int, logger *zerolog.Logger) *ConsultationService {
	if maxRangeDays <= 0 {
		maxRangeDays = 366
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ConsultationService{
		store:        store,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		maxRangeDays: maxRangeDays,
		logger:       logger,
	}
}

// List returns consultations booked for days in [from, to].
func (s *ConsultationService) List(ctx context.Context, from, to time.Time) ([]*models.Consultation, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalidRange)
	}
	if to.Sub(from) > time.Duration(s.maxRangeDays)*24*time.Hour {
		return nil, fmt.Errorf("%w: range longer than %d days", ErrInvalidRange, s.maxRangeDays)
	}
	return s.store.GetConsultationsByDateRange(ctx, from, to)
}

func (s *ConsultationService) GetByReference(ctx context.Context, reference string) (*models.Consultation, error) {
	return s.store.GetConsultationByReference(ctx, reference)
}

// UpdateStatus records manager progress and mirrors it to the sheet.
func (s *ConsultationService) UpdateStatus(ctx context.Context, id int64, status string) (*models.Consultation, error) {
	if err := s.store.UpdateConsultationStatus(ctx, id, status); err != nil {
		return nil, err
	}

	c, err := s.store.GetConsultation(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.eventBus != nil {
		if err := s.eventBus.PublishJSON(events.EventConsultationStatusChanged, events.PayloadFromConsultation(c)); err != nil {
			s.logger.Warn().Err(err).Int64("consultation_id", id).Msg("failed to publish event")
		}
	}
	if s.sheetsWorker != nil {
		if err := s.sheetsWorker.EnqueueStatusUpdate(ctx, id, status); err != nil {
			s.logger.Warn().Err(err).Int64("consultation_id", id).Msg("failed to enqueue status sync")
		}
	}
	return c, nil
}
