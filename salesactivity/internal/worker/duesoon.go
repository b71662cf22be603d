// Package worker runs the periodic due-soon scan. The scan is scheduled
// through asynq and guarded by a redis lease so that a fleet of workers
// produces one scan per interval, and each task produces at most one
// task.due_soon no matter how many scans see it.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"securities-sales-crm/salesactivity/internal/models"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/lockx"
	"securities-sales-crm/shared/logx"
)

const (
	TaskTypeDueSoonScan = "salesactivity:due_soon_scan"

	scanLockKey = "salesactivity:due_soon_scan:lock"
	scanBatch   = 500
)

type TaskScanner interface {
	ListDueSoon(ctx context.Context, window time.Duration, limit int) ([]models.Task, error)
	MarkDueSoonNotified(ctx context.Context, taskID uuid.UUID) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, env events.Envelope) error
}

// Locker is the scan lease. The redis implementation is the production one;
// tests substitute their own.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

type RedisLocker struct {
	Client *redis.Client
}

func (l RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lock, ok, err := lockx.Acquire(ctx, l.Client, key, ttl)
	if err != nil || !ok {
		return nil, ok, err
	}
	return func() { _ = lockx.Release(context.Background(), l.Client, lock) }, true, nil
}

type DueSoonScanner struct {
	Logger    logx.Logger
	Tasks     TaskScanner
	Publisher Publisher
	Locker    Locker
	Window    time.Duration
	LockTTL   time.Duration
}

// HandleScan is the asynq handler for one scan tick. Losing the lock race is
// not an error: another worker owns this interval.
func (s *DueSoonScanner) HandleScan(ctx context.Context, _ *asynq.Task) error {
	release, acquired, err := s.Locker.Acquire(ctx, scanLockKey, s.LockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		s.Logger.Debug(ctx, "due_soon_scan_skipped", "scan lock held elsewhere")
		return nil
	}
	defer release()
	return s.Scan(ctx)
}

// Scan claims each due task, then publishes. Claiming first means a publish
// failure loses that one notification rather than double-notifying on the
// next tick; the conditional claim in the repo makes racing scanners safe.
func (s *DueSoonScanner) Scan(ctx context.Context) error {
	tasks, err := s.Tasks.ListDueSoon(ctx, s.Window, scanBatch)
	if err != nil {
		return err
	}

	var published int
	for _, task := range tasks {
		claimed, err := s.Tasks.MarkDueSoonNotified(ctx, task.TaskID)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}
		env, err := events.New(events.TypeTaskDueSoon, events.TaskData{
			TaskID:         task.TaskID,
			CustomerID:     task.CustomerID,
			AssigneeUserID: task.AssigneeUserID,
			Title:          task.Title,
			DueAt:          task.DueAt,
		})
		if err != nil {
			return err
		}
		if err := s.Publisher.Publish(ctx, events.TopicSalesEvents, env); err != nil {
			s.Logger.Warn(ctx, "due_soon_publish_failed", "task claimed but event dropped",
				slog.String("task_id", task.TaskID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		published++
	}

	if len(tasks) > 0 {
		s.Logger.Info(ctx, "due_soon_scan_done", "due-soon scan finished",
			slog.Int("candidates", len(tasks)),
			slog.Int("published", published),
		)
	}
	return nil
}

// ScanPayload is currently empty; the type exists so the schedule entry has a
// stable task payload shape.
type ScanPayload struct{}

func NewScanTask() *asynq.Task {
	payload, _ := json.Marshal(ScanPayload{})
	return asynq.NewTask(TaskTypeDueSoonScan, payload)
}
