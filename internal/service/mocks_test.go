package service

import (
	"context"
	"sync"
	"time"

	"consultbook/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateConsultation(ctx context.Context, c *models.Consultation) error {
	return m.Called(ctx, c).Error(0)
}
func (m *mockStore) GetConsultation(ctx context.Context, id int64) (*models.Consultation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Consultation), args.Error(1)
}
func (m *mockStore) GetConsultationByReference(ctx context.Context, ref string) (*models.Consultation, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Consultation), args.Error(1)
}
func (m *mockStore) GetConsultationsByDateRange(ctx context.Context, s, e time.Time) ([]*models.Consultation, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Consultation), args.Error(1)
}
func (m *mockStore) UpdateConsultationStatus(ctx context.Context, id int64, s string) error {
	return m.Called(ctx, id, s).Error(0)
}

type mockSyncWorker struct {
	mock.Mock
}

func (m *mockSyncWorker) EnqueueConsultation(ctx context.Context, c *models.Consultation) error {
	return m.Called(ctx, c).Error(0)
}
func (m *mockSyncWorker) EnqueueStatusUpdate(ctx context.Context, id int64, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyConsultation(ctx context.Context, c *models.Consultation) error {
	return m.Called(ctx, c).Error(0)
}

// recordingBus collects published event types.
type recordingBus struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBus) PublishJSON(eventType string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
	return nil
}

func (b *recordingBus) Types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}
