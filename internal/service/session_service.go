package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"consultbook/internal/availability"
	"consultbook/internal/booking"
	"consultbook/internal/domain"
	"consultbook/internal/events"
	"consultbook/internal/metrics"
	"consultbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const lockStripes = 64

type SessionOptions struct {
	PreselectFirstDate bool
	SubmitRateLimit    int
	SubmitRateWindow   time.Duration
}

// SessionView is a stored flow plus the slots the visitor can pick right now.
type SessionView struct {
	models.FlowState
	AvailableSlots []models.SlotView `json:"available_slots"`
}

// SessionService ведёт сценарий бронирования между HTTP-запросами.
// Each call loads the flow from the state repository, applies one operation
// and stores the new snapshot.
type SessionService struct {
	engine    *availability.Engine
	repo      domain.StateRepository
	submitter booking.Submitter
	eventBus  domain.EventPublisher
	opts      SessionOptions
	newID     func() string
	logger    *zerolog.Logger

	locks      [lockStripes]sync.Mutex
	submitting sync.Map
}

func NewSessionService(
	engine *availability.Engine,
	repo domain.StateRepository,
	submitter booking.Submitter,
	eventBus domain.EventPublisher,
	opts SessionOptions,
	logger *zerolog.Logger,
) *SessionService {
	if opts.SubmitRateLimit <= 0 {
		opts.SubmitRateLimit = models.SubmitRateLimit
	}
	if opts.SubmitRateWindow <= 0 {
		opts.SubmitRateWindow = models.SubmitRateWindow * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SessionService{
		engine:    engine,
		repo:      repo,
		submitter: submitter,
		eventBus:  eventBus,
		opts:      opts,
		newID:     uuid.NewString,
		logger:    logger,
	}
}

func (s *SessionService) newFlow() *booking.Flow {
	return booking.NewFlow(s.engine, s.submitter, booking.Options{PreselectFirstDate: s.opts.PreselectFirstDate})
}

func (s *SessionService) lockFor(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &s.locks[h.Sum32()%lockStripes]
}

// Start opens a new session with default selections.
func (s *SessionService) Start(ctx context.Context) (*SessionView, error) {
	id := s.newID()
	flow := s.newFlow()
	if err := s.save(ctx, id, flow); err != nil {
		return nil, err
	}
	s.logger.Debug().Str("session_id", id).Msg("booking session started")
	return s.view(id, flow), nil
}

// Get returns the session as the current rules see it: a stale date or an
// unavailable time is dropped on load.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*SessionView, error) {
	flow, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(sessionID, flow), nil
}

// Delete forgets the session.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionNotFound
	}
	return s.repo.ClearState(ctx, sessionID)
}

func (s *SessionService) SelectDate(ctx context.Context, sessionID string, date models.CalendarDate) (*SessionView, error) {
	return s.mutate(ctx, sessionID, func(f *booking.Flow) error {
		return f.SelectDate(date)
	})
}

func (s *SessionService) SelectTime(ctx context.Context, sessionID string, t models.TimeOfDay) (*SessionView, error) {
	return s.mutate(ctx, sessionID, func(f *booking.Flow) error {
		return f.SelectTime(t)
	})
}

func (s *SessionService) ClearTime(ctx context.Context, sessionID string) (*SessionView, error) {
	return s.mutate(ctx, sessionID, func(f *booking.Flow) error {
		f.ClearTime()
		return nil
	})
}

// SelectDuration also reports whether the chosen time had to be cleared.
func (s *SessionService) SelectDuration(ctx context.Context, sessionID string, d models.Duration) (*SessionView, bool, error) {
	var cleared bool
	view, err := s.mutate(ctx, sessionID, func(f *booking.Flow) error {
		var err error
		cleared, err = f.SelectDuration(d)
		return err
	})
	return view, cleared, err
}

func (s *SessionService) SetContact(ctx context.Context, sessionID string, c models.Contact) (*SessionView, error) {
	return s.mutate(ctx, sessionID, func(f *booking.Flow) error {
		return f.SetContact(c)
	})
}

// Submit validates and hands the request over. A second submit for the same
// session while one is running gets booking.ErrSubmissionInProgress.
func (s *SessionService) Submit(ctx context.Context, sessionID string) (*SessionView, *models.Confirmation, error) {
	if sessionID == "" {
		return nil, nil, ErrSessionNotFound
	}
	if _, busy := s.submitting.LoadOrStore(sessionID, struct{}{}); busy {
		metrics.IncSubmission("in_progress")
		return nil, nil, booking.ErrSubmissionInProgress
	}
	defer s.submitting.Delete(sessionID)

	allowed, err := s.repo.CheckRateLimit(ctx, "submit:"+sessionID, s.opts.SubmitRateLimit, s.opts.SubmitRateWindow)
	if err != nil {
		// не блокируем посетителя из-за недоступного счётчика
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("rate limit check failed")
		allowed = true
	}
	if !allowed {
		metrics.IncSubmission("rate_limited")
		return nil, nil, ErrRateLimited
	}

	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	flow, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	done := metrics.TrackSubmit()
	conf, submitErr := flow.Submit(ctx)
	done()

	s.recordOutcome(sessionID, submitErr)

	if err := s.save(ctx, sessionID, flow); err != nil {
		if submitErr == nil {
			// заявка уже сохранена, поэтому подтверждение всё равно отдаём
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to save session after submit")
			return s.view(sessionID, flow), conf, nil
		}
		return nil, nil, errors.Join(submitErr, err)
	}

	return s.view(sessionID, flow), conf, submitErr
}

func (s *SessionService) recordOutcome(sessionID string, err error) {
	payload := events.ConsultationEventPayload{SessionID: sessionID}

	var verr *booking.ValidationError
	switch {
	case err == nil:
		metrics.IncSubmission(models.OutcomeConfirmed)
		return
	case errors.As(err, &verr):
		metrics.IncSubmission(models.OutcomeValidationFailed)
		payload.MissingFields = verr.Missing
		payload.InvalidFields = verr.Invalid
		s.publish(events.EventConsultationValidationFailed, payload)
	case booking.IsSubmission(err):
		metrics.IncSubmission(models.OutcomeSubmissionFailed)
		payload.Error = err.Error()
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("consultation submission failed")
		s.publish(events.EventConsultationSubmissionFailed, payload)
	case errors.Is(err, booking.ErrSubmissionInProgress):
		metrics.IncSubmission("in_progress")
	}
}

func (s *SessionService) publish(eventType string, payload events.ConsultationEventPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func (s *SessionService) mutate(ctx context.Context, sessionID string, fn func(*booking.Flow) error) (*SessionView, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	if _, busy := s.submitting.Load(sessionID); busy {
		return nil, booking.ErrSubmissionInProgress
	}

	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	flow, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	opErr := fn(flow)
	if err := s.save(ctx, sessionID, flow); err != nil {
		return nil, err
	}
	return s.view(sessionID, flow), opErr
}

func (s *SessionService) load(ctx context.Context, sessionID string) (*booking.Flow, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	state, err := s.repo.GetState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrSessionNotFound
	}
	flow := s.newFlow()
	flow.Restore(*state)
	return flow, nil
}

func (s *SessionService) save(ctx context.Context, sessionID string, flow *booking.Flow) error {
	state := flow.Snapshot()
	state.SessionID = sessionID
	return s.repo.SetState(ctx, &state)
}

func (s *SessionService) view(sessionID string, flow *booking.Flow) *SessionView {
	state := flow.Snapshot()
	state.SessionID = sessionID

	v := &SessionView{FlowState: state, AvailableSlots: []models.SlotView{}}
	if state.HasDate() {
		slots, err := flow.AvailableSlots()
		if err == nil {
			for _, slot := range slots {
				v.AvailableSlots = append(v.AvailableSlots, slot.View())
			}
		}
	}
	return v
}
