package repository

import (
	"context"
	"sync"
	"time"

	"consultbook/internal/models"
)

// MemoryStateRepository is the in-process fallback when Redis is unavailable.
type MemoryStateRepository struct {
	states     sync.Map
	rateLimits sync.Map
	ttl        time.Duration
	mu         sync.Mutex
	now        func() time.Time
}

type memoryEntry struct {
	state     models.FlowState
	expiresAt time.Time
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		ttl: ttl,
		now: time.Now,
	}
}

func (r *MemoryStateRepository) GetState(ctx context.Context, sessionID string) (*models.FlowState, error) {
	val, ok := r.states.Load(sessionID)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryEntry)
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		r.states.Delete(sessionID)
		return nil, nil
	}
	state := entry.state
	return &state, nil
}

func (r *MemoryStateRepository) SetState(ctx context.Context, state *models.FlowState) error {
	if state == nil || state.SessionID == "" {
		return ErrEmptySessionID
	}
	r.states.Store(state.SessionID, &memoryEntry{
		state:     *state,
		expiresAt: r.now().Add(r.ttl),
	})
	return nil
}

func (r *MemoryStateRepository) ClearState(ctx context.Context, sessionID string) error {
	r.states.Delete(sessionID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}

// Sweep drops expired sessions and rate limit windows.
func (r *MemoryStateRepository) Sweep() int {
	now := r.now()
	removed := 0
	if r.ttl > 0 {
		r.states.Range(func(k, v any) bool {
			if now.After(v.(*memoryEntry).expiresAt) {
				r.states.Delete(k)
				removed++
			}
			return true
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimits.Range(func(k, v any) bool {
		if now.After(v.(*rateLimitEntry).expiresAt) {
			r.rateLimits.Delete(k)
		}
		return true
	})
	return removed
}
