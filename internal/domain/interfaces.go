package domain

import (
	"context"
	"time"

	"consultbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ConsultationStore persists submitted consultation requests.
type ConsultationStore interface {
	CreateConsultation(ctx context.Context, c *models.Consultation) error
	GetConsultation(ctx context.Context, id int64) (*models.Consultation, error)
	GetConsultationByReference(ctx context.Context, reference string) (*models.Consultation, error)
	GetConsultationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Consultation, error)
	UpdateConsultationStatus(ctx context.Context, id int64, status string) error
}

// StateRepository хранит состояние сценария бронирования по id сессии.
type StateRepository interface {
	GetState(ctx context.Context, sessionID string) (*models.FlowState, error)
	SetState(ctx context.Context, state *models.FlowState) error
	ClearState(ctx context.Context, sessionID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	UpsertConsultation(ctx context.Context, c *models.Consultation) error
	UpdateConsultationStatus(ctx context.Context, consultationID int64, status string) error
	ReplaceConsultationsSheet(ctx context.Context, consultations []*models.Consultation) error
}

type SyncWorker interface {
	EnqueueConsultation(ctx context.Context, c *models.Consultation) error
	EnqueueStatusUpdate(ctx context.Context, consultationID int64, status string) error
}

// Notifier tells managers about a new consultation request.
type Notifier interface {
	NotifyConsultation(ctx context.Context, c *models.Consultation) error
}
