// Package worker pushes reservation changes to Google Sheets in the background.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"salonbook/internal/database"
	"salonbook/internal/domain"
	"salonbook/internal/metrics"
	"salonbook/internal/models"
	"salonbook/internal/retry"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskUpsert       = domain.SyncUpsert
	TaskDelete       = domain.SyncDelete
	TaskUpdateStatus = domain.SyncUpdateStatus
)

// taskPayload is persisted in SyncTask.Payload as JSON. Upserts reload the
// reservation when processed so the row always reflects the latest state.
type taskPayload struct {
	ReservationID int64  `json:"reservation_id"`
	Status        string `json:"status,omitempty"`
}

// SheetsWorker consumes sync_queue tasks and applies them to a SheetsWriter.
// Tasks are always persisted first; redis or the local channel only speed up
// pickup, and the DB poll catches whatever they miss.
type SheetsWorker struct {
	db            *database.DB
	sheets        domain.SheetsWriter
	redis         *redis.Client
	retryPolicy   retry.Policy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	retention     time.Duration
	logger        *zerolog.Logger
}

func NewSheetsWorker(db *database.DB, sheets domain.SheetsWriter, redisClient *redis.Client, policy retry.Policy, logger *zerolog.Logger) *SheetsWorker {
	if policy.MaxRetries == 0 {
		policy.MaxRetries = 5
	}
	if policy.InitialDelay == 0 {
		policy.InitialDelay = 2 * time.Second
	}
	if policy.MaxDelay == 0 {
		policy.MaxDelay = time.Minute
	}
	if policy.BackoffFactor == 0 {
		policy.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &SheetsWorker{
		db:            db,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   policy,
		queue:         make(chan models.SyncTask, 128),
		redisQueueKey: "salonbook:sheets:queue",
		deadLetterKey: "salonbook:sheets:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		retention:     7 * 24 * time.Hour,
		logger:        logger,
	}
}

// EnqueueTask persists a task and schedules it via redis or the in-memory queue.
func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType string, reservationID int64, r *models.Reservation, status string) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if reservationID == 0 && r != nil {
		reservationID = r.ID
	}
	if reservationID == 0 {
		return errors.New("reservation id is required")
	}

	payloadBytes, err := json.Marshal(taskPayload{ReservationID: reservationID, Status: status})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType:      taskType,
		ReservationID: reservationID,
		Payload:       string(payloadBytes),
		Status:        models.SyncStatusPending,
	}
	if err := w.db.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}
	metrics.IncSyncTask("enqueued")

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, &task); err != nil {
			w.logger.Warn().Err(err).Msg("sheets_worker: redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("sheets_worker: in-memory queue full, left to polling")
	}
	return nil
}

// Start runs the main loop until ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sheets_worker: started")
	defer w.logger.Info().Msg("sheets_worker: stopped")

	if failed, err := w.db.GetFailedSyncTasks(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("sheets_worker: list failed tasks")
	} else if len(failed) > 0 {
		w.logger.Warn().Int("count", len(failed)).Int64("oldest_reservation_id", failed[len(failed)-1].ReservationID).
			Msg("sheets_worker: failed tasks need manual resync")
	}

	purge := time.NewTicker(time.Hour)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-purge.C:
			w.purge(ctx)
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
			w.logger.Error().Err(err).Msg("sheets_worker: fetch pending")
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

func (w *SheetsWorker) purge(ctx context.Context) {
	n, err := w.db.PurgeSyncTasks(ctx, time.Now().Add(-w.retention))
	if err != nil {
		w.logger.Error().Err(err).Msg("sheets_worker: purge completed tasks")
		return
	}
	if n > 0 {
		w.logger.Info().Int64("purged", n).Msg("sheets_worker: purged completed tasks")
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
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Error().Err(err).Msg("sheets_worker: redis BRPOP")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("sheets_worker: decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleSheetTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: mark completed")
	}
	metrics.IncSyncTask(models.SyncStatusCompleted)
}

func (w *SheetsWorker) handleSheetTask(ctx context.Context, taskType string, payload taskPayload) error {
	if payload.ReservationID == 0 {
		return errors.New("reservation id missing")
	}

	switch taskType {
	case TaskUpsert:
		r, err := w.db.GetReservation(ctx, payload.ReservationID)
		if errors.Is(err, database.ErrReservationNotFound) {
			// deleted after the task was queued; its delete task clears the row
			return nil
		}
		if err != nil {
			return err
		}
		return w.sheets.UpsertReservation(ctx, r)
	case TaskDelete:
		return w.sheets.DeleteReservationRow(ctx, payload.ReservationID)
	case TaskUpdateStatus:
		if payload.Status == "" {
			return errors.New("status missing")
		}
		return w.sheets.UpdateReservationStatus(ctx, payload.ReservationID, models.Status(payload.Status))
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	if task.RetryCount >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	attempt := task.RetryCount + 1
	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: mark retry")
	}
	metrics.IncSyncTask(models.SyncStatusRetry)
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", next).Msg("sheets_worker: task will be retried")
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: mark failed")
	}
	metrics.IncSyncTask(models.SyncStatusFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("type", task.TaskType).Msg("sheets_worker: task failed")

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.deadLetterKey, task); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: deadletter push")
		}
	}
}

func (w *SheetsWorker) decodePayload(raw string) (taskPayload, error) {
	var payload taskPayload
	err := json.Unmarshal([]byte(raw), &payload)
	return payload, err
}

func (w *SheetsWorker) pushRedis(ctx context.Context, key string, task *models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
