package repository

import (
	"context"
	"sync/atomic"
	"time"

	"consultbook/internal/domain"
	"consultbook/internal/models"

	"github.com/rs/zerolog"
)

const defaultRecoveryInterval = time.Minute

// FailoverStateRepository serves from primary (Redis) and switches to the
// fallback (memory) on the first primary error. The primary is retried once the
// recovery interval has passed.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64 // unix nano
	recovery  time.Duration
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		recovery: defaultRecoveryInterval,
	}
}

// IsDegraded reports whether requests currently go to the fallback.
func (r *FailoverStateRepository) IsDegraded() bool {
	return r.isDown.Load()
}

func (r *FailoverStateRepository) markDown(err error, op string) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Str("op", op).Msg("Primary state repository failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

// usePrimary decides whether this call should try the primary store.
func (r *FailoverStateRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > r.recovery
}

func (r *FailoverStateRepository) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary state repository recovered")
	}
}

func (r *FailoverStateRepository) GetState(ctx context.Context, sessionID string) (*models.FlowState, error) {
	if r.usePrimary() {
		state, err := r.primary.GetState(ctx, sessionID)
		if err == nil {
			r.recovered()
			return state, nil
		}
		r.markDown(err, "get_state")
	}

	return r.fallback.GetState(ctx, sessionID)
}

func (r *FailoverStateRepository) SetState(ctx context.Context, state *models.FlowState) error {
	if r.usePrimary() {
		err := r.primary.SetState(ctx, state)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err, "set_state")
	}

	return r.fallback.SetState(ctx, state)
}

func (r *FailoverStateRepository) ClearState(ctx context.Context, sessionID string) error {
	// fallback may hold a copy written while primary was down
	_ = r.fallback.ClearState(ctx, sessionID)

	if r.usePrimary() {
		err := r.primary.ClearState(ctx, sessionID)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err, "clear_state")
	}

	return nil
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err, "rate_limit")
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
