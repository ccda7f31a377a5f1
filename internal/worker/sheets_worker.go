package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"consultbook/internal/database"
	"consultbook/internal/domain"
	"consultbook/internal/metrics"
	"consultbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskUpsert       = "upsert"
	TaskUpdateStatus = "update_status"
	TaskRebuild      = "rebuild"
)

const (
	redisQueueKey = "sheets:queue"
	deadLetterKey = "sheets:deadletter"
)

// sheetTaskPayload is persisted in SyncTask.Payload as JSON.
type sheetTaskPayload struct {
	ConsultationID int64                `json:"consultation_id,omitempty"`
	Consultation   *models.Consultation `json:"consultation,omitempty"`
	Status         string               `json:"status,omitempty"`
	From           string               `json:"from,omitempty"`
	To             string               `json:"to,omitempty"`
}

// SheetsWorker consumes sync_queue tasks and applies them to Google Sheets.
type SheetsWorker struct {
	db           *database.DB
	sheets       domain.SheetsWriter
	redis        *redis.Client
	retryPolicy  RetryPolicy
	queue        chan models.SyncTask
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
}

// NewSheetsWorker builds a worker with sane defaults.
func NewSheetsWorker(db *database.DB, sheets domain.SheetsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	retry = retry.withDefaults()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "sheets_worker").Logger()

	return &SheetsWorker{
		db:           db,
		sheets:       sheets,
		redis:        redisClient,
		retryPolicy:  retry,
		queue:        make(chan models.SyncTask, models.WorkerQueueSize),
		pollInterval: 2 * time.Second,
		batchSize:    20,
		logger:       &l,
	}
}

// EnqueueConsultation schedules a row upsert for a freshly stored consultation.
func (w *SheetsWorker) EnqueueConsultation(ctx context.Context, c *models.Consultation) error {
	if c == nil || c.ID == 0 {
		return errors.New("consultation id is required")
	}
	return w.enqueue(ctx, TaskUpsert, sheetTaskPayload{ConsultationID: c.ID, Consultation: c})
}

// EnqueueStatusUpdate schedules a status cell update.
func (w *SheetsWorker) EnqueueStatusUpdate(ctx context.Context, consultationID int64, status string) error {
	if consultationID == 0 || status == "" {
		return errors.New("consultation id and status are required")
	}
	return w.enqueue(ctx, TaskUpdateStatus, sheetTaskPayload{ConsultationID: consultationID, Status: status})
}

// EnqueueRebuild schedules a full rewrite of the sheet from the database range.
func (w *SheetsWorker) EnqueueRebuild(ctx context.Context, from, to time.Time) error {
	if to.Before(from) {
		return fmt.Errorf("invalid range %s..%s", from.Format(models.DateLayout), to.Format(models.DateLayout))
	}
	return w.enqueue(ctx, TaskRebuild, sheetTaskPayload{
		From: from.Format(models.DateLayout),
		To:   to.Format(models.DateLayout),
	})
}

// enqueue persists task to DB and schedules it via redis or in-memory queue.
func (w *SheetsWorker) enqueue(ctx context.Context, taskType string, payload sheetTaskPayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	syncTask := models.SyncTask{
		TaskType:       taskType,
		ConsultationID: payload.ConsultationID,
		Payload:        string(payloadBytes),
		Status:         database.SyncStatusPending,
	}

	if err := w.db.CreateSyncTask(ctx, &syncTask); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	// Try redis first for durability.
	if w.redis != nil {
		if err := w.pushRedis(ctx, syncTask); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", syncTask.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- syncTask:
	default:
		w.logger.Warn().Int64("task_id", syncTask.ID).Msg("in-memory queue full, task left for polling")
	}

	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("started")
	defer w.logger.Info().Msg("stopped")

	// после рестарта даём упавшим задачам ещё один круг ретраев
	if failed, err := w.db.GetFailedSyncTasks(ctx); err == nil && len(failed) > 0 {
		n, err := w.db.RequeueFailedSyncTasks(ctx)
		if err != nil {
			w.logger.Error().Err(err).Int("failed", len(failed)).Msg("requeue failed tasks")
		} else {
			w.logger.Warn().Int64("requeued", n).Int64("latest_task", failed[0].ID).Msg("failed sync tasks requeued")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *SheetsWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	// Задача могла прийти и из очереди, и из поллинга: берём актуальный статус из БД.
	if task.ID != 0 {
		current, err := w.db.GetSyncTask(ctx, task.ID)
		if err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("reload task")
			return
		}
		if current.Status == database.SyncStatusCompleted || current.Status == database.SyncStatusFailed {
			return
		}
		task = current
	}

	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleSheetTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, database.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
	metrics.IncSyncTask(database.SyncStatusCompleted)
}

func (w *SheetsWorker) handleSheetTask(ctx context.Context, taskType string, payload sheetTaskPayload) error {
	switch taskType {
	case TaskUpsert:
		if payload.Consultation == nil {
			return errors.New("consultation payload missing")
		}
		return w.sheets.UpsertConsultation(ctx, payload.Consultation)
	case TaskUpdateStatus:
		if payload.ConsultationID == 0 || payload.Status == "" {
			return errors.New("consultation id or status missing")
		}
		return w.sheets.UpdateConsultationStatus(ctx, payload.ConsultationID, payload.Status)
	case TaskRebuild:
		from, err := time.Parse(models.DateLayout, payload.From)
		if err != nil {
			return fmt.Errorf("rebuild from: %w", err)
		}
		to, err := time.Parse(models.DateLayout, payload.To)
		if err != nil {
			return fmt.Errorf("rebuild to: %w", err)
		}
		consultations, err := w.db.GetConsultationsByDateRange(ctx, from, to)
		if err != nil {
			return err
		}
		return w.sheets.ReplaceConsultationsSheet(ctx, consultations)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextDelay := w.retryPolicy.NextDelay(attempt)
	nextTime := w.retryPolicy.NextRetryAt(time.Now(), attempt)
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Dur("delay", nextDelay).Msg("task retry scheduled")
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, database.SyncStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	metrics.IncSyncTask(database.SyncStatusRetry)
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("type", task.TaskType).Msg("task failed")
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, database.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	metrics.IncSyncTask(database.SyncStatusFailed)
	w.pushDeadLetter(ctx, task)
}

func (w *SheetsWorker) decodePayload(raw string) (sheetTaskPayload, error) {
	var payload sheetTaskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *SheetsWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, redisQueueKey, data).Err()
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
