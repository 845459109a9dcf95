package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"frontdesk/internal/database"
	"frontdesk/internal/domain"
	"frontdesk/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// occupancyDays is how far ahead the occupancy grid looks.
const occupancyDays = 30

// SheetsWorker consumes sync_queue tasks and mirrors bookings into Google Sheets.
// Tasks are persisted first, then handed over through Redis or the in-memory queue;
// the database poll picks up anything both of those lost.
type SheetsWorker struct {
	db            *database.DB
	sheets        domain.SheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewSheetsWorker builds a worker with sane defaults.
func NewSheetsWorker(
	db *database.DB,
	sheets domain.SheetsWriter,
	redisClient *redis.Client,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *SheetsWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &SheetsWorker{
		db:            db,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "frontdesk:sheets:queue",
		deadLetterKey: "frontdesk:sheets:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueTask persists a mirror update for the booking and schedules it.
func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if booking == nil || booking.ID == 0 {
		return errors.New("booking id is required")
	}

	payload, err := json.Marshal(booking)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return w.enqueue(ctx, models.SyncTask{
		TaskType:  taskType,
		BookingID: booking.ID,
		Payload:   string(payload),
	})
}

// EnqueueFullSync schedules a rewrite of the whole bookings sheet.
func (w *SheetsWorker) EnqueueFullSync(ctx context.Context) error {
	return w.enqueue(ctx, models.SyncTask{TaskType: models.SyncTaskReplaceAll, Payload: "{}"})
}

func (w *SheetsWorker) enqueue(ctx context.Context, task models.SyncTask) error {
	task.Status = models.SyncStatusPending
	if err := w.db.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("sheets_worker: in-memory queue full, task left to polling")
	}
	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sheets_worker: started")
	defer w.logger.Info().Msg("sheets_worker: stopped")

	if failed, err := w.db.GetFailedSyncTasks(ctx); err == nil && len(failed) > 0 {
		w.logger.Warn().Int("failed_tasks", len(failed)).Msg("sheets_worker: failed tasks in sync_queue")
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
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
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
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Error().Err(err).Msg("sheets_worker: redis BRPOP error")
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
	if err := w.handleSheetTask(ctx, task); err != nil {
		var perm permanentError
		if errors.As(err, &perm) {
			w.failTask(ctx, task, err)
			return
		}
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: mark completed")
	}
}

// permanentError marks a task that retrying cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func (w *SheetsWorker) handleSheetTask(ctx context.Context, task *models.SyncTask) error {
	if task.TaskType == models.SyncTaskReplaceAll {
		return w.replaceAll(ctx)
	}

	booking, err := w.decodePayload(task.Payload)
	if err != nil {
		return permanentError{fmt.Errorf("decode payload: %w", err)}
	}
	if booking.ID == 0 {
		return permanentError{errors.New("booking id missing")}
	}

	switch task.TaskType {
	case models.SyncTaskUpsert:
		return w.sheets.UpsertBooking(ctx, booking)
	case models.SyncTaskUpdateStatus:
		if booking.Status == "" {
			return permanentError{errors.New("booking status missing")}
		}
		return w.sheets.UpdateBookingStatus(ctx, booking.ID, string(booking.Status))
	case models.SyncTaskUpdatePayment:
		if booking.PaymentStatus == "" {
			return permanentError{errors.New("payment status missing")}
		}
		return w.sheets.UpdatePaymentStatus(ctx, booking.ID, string(booking.PaymentStatus))
	default:
		return permanentError{fmt.Errorf("unknown task type: %s", task.TaskType)}
	}
}

// occupancyWriter is implemented by mirrors that also keep a rooms-by-dates grid.
type occupancyWriter interface {
	UpdateOccupancySheet(ctx context.Context, start, end time.Time, rooms []*models.Room, bookings []*models.Booking) error
}

func (w *SheetsWorker) replaceAll(ctx context.Context) error {
	bookings, err := w.db.ListBookings(ctx, models.BookingFilter{})
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}
	if err := w.sheets.ReplaceBookingsSheet(ctx, bookings); err != nil {
		return err
	}

	grid, ok := w.sheets.(occupancyWriter)
	if !ok {
		return nil
	}
	rooms, err := w.db.ListRooms(ctx, models.RoomFilter{})
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	start := models.NormalizeDate(time.Now())
	return grid.UpdateOccupancySheet(ctx, start, start.AddDate(0, 0, occupancyDays-1), rooms, bookings)
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).
		Int64("task_id", task.ID).
		Int("attempt", attempt).
		Time("next_retry_at", nextTime).
		Msg("sheets_worker: task failed, will retry")
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: mark retry")
	}
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("task_type", task.TaskType).Msg("sheets_worker: task failed")
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: mark failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *SheetsWorker) decodePayload(raw string) (*models.Booking, error) {
	var booking models.Booking
	if err := json.Unmarshal([]byte(raw), &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (w *SheetsWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets_worker: deadletter push")
	}
}
