package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"securities-sales-crm/salesactivity/internal/models"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskCompleted = errors.New("task already completed")
)

type TasksRepo struct {
	pool *pgxpool.Pool
}

func NewTasksRepo(pool *pgxpool.Pool) *TasksRepo {
	return &TasksRepo{pool: pool}
}

const taskColumns = `task_id, customer_id, assignee_user_id, title, description, status, due_at, due_soon_notified_at, created_at, updated_at`

func scanTask(row pgx.Row) (models.Task, error) {
	var t models.Task
	err := row.Scan(&t.TaskID, &t.CustomerID, &t.AssigneeUserID, &t.Title, &t.Description, &t.Status, &t.DueAt, &t.DueSoonNotifiedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, ErrTaskNotFound
	}
	return t, err
}

func (r *TasksRepo) CreateTask(ctx context.Context, customerID uuid.UUID, assigneeUserID uuid.UUID, title string, description string, dueAt *time.Time) (models.Task, error) {
	now := time.Now().UTC()
	return scanTask(r.pool.QueryRow(ctx, `
		INSERT INTO tasks (task_id, customer_id, assignee_user_id, title, description, status, due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING `+taskColumns+`
	`, uuid.New(), customerID, assigneeUserID, title, description, models.TaskStatusOpen, dueAt, now))
}

func (r *TasksRepo) GetTaskByID(ctx context.Context, taskID uuid.UUID) (models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE task_id = $1
	`, taskID))
}

func (r *TasksRepo) ListTasks(ctx context.Context, customerID *uuid.UUID, assigneeUserID *uuid.UUID, limit int, offset int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE 1=1`
	args := []any{limit, offset}
	if customerID != nil {
		args = append(args, *customerID)
		query += ` AND customer_id = $3`
	}
	if assigneeUserID != nil {
		args = append(args, *assigneeUserID)
		if customerID != nil {
			query += ` AND assignee_user_id = $4`
		} else {
			query += ` AND assignee_user_id = $3`
		}
	}
	query += `
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask only touches open tasks; editing a completed task is a conflict.
func (r *TasksRepo) UpdateTask(ctx context.Context, taskID uuid.UUID, title string, description string, dueAt *time.Time) (models.Task, error) {
	task, err := scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, due_at = $4, updated_at = $5
		WHERE task_id = $1 AND status = $6
		RETURNING `+taskColumns+`
	`, taskID, title, description, dueAt, time.Now().UTC(), models.TaskStatusOpen))
	if errors.Is(err, ErrTaskNotFound) {
		return models.Task{}, r.missOrCompleted(ctx, taskID)
	}
	return task, err
}

// CompleteTask flips OPEN to COMPLETED; repeating it matches no row, so a
// replayed completion is a conflict for callers and a no-op for state.
func (r *TasksRepo) CompleteTask(ctx context.Context, taskID uuid.UUID) (models.Task, error) {
	task, err := scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET status = $2, updated_at = $3
		WHERE task_id = $1 AND status = $4
		RETURNING `+taskColumns+`
	`, taskID, models.TaskStatusCompleted, time.Now().UTC(), models.TaskStatusOpen))
	if errors.Is(err, ErrTaskNotFound) {
		return models.Task{}, r.missOrCompleted(ctx, taskID)
	}
	return task, err
}

// missOrCompleted disambiguates a conditional-update miss: the task is either
// absent or already completed. A failed follow-up read propagates as-is so a
// transient database error does not masquerade as not-found.
func (r *TasksRepo) missOrCompleted(ctx context.Context, taskID uuid.UUID) error {
	_, err := r.GetTaskByID(ctx, taskID)
	return disambiguateMiss(err, ErrTaskNotFound, ErrTaskCompleted)
}

func disambiguateMiss(getErr error, notFound error, conflict error) error {
	switch {
	case getErr == nil:
		return conflict
	case errors.Is(getErr, notFound):
		return notFound
	default:
		return getErr
	}
}

func (r *TasksRepo) DeleteTask(ctx context.Context, taskID uuid.UUID) (models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `
		DELETE FROM tasks
		WHERE task_id = $1
		RETURNING `+taskColumns+`
	`, taskID))
}

func (r *TasksRepo) DeleteByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE customer_id = $1`, customerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *TasksRepo) DeleteByAssignee(ctx context.Context, assigneeUserID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE assignee_user_id = $1`, assigneeUserID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListDueSoon returns open tasks due inside the window that have not been
// flagged yet. The scanner marks each task after publishing so one task
// yields at most one task.due_soon.
func (r *TasksRepo) ListDueSoon(ctx context.Context, window time.Duration, limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 500
	}
	now := time.Now().UTC()
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status = $1
		  AND due_at IS NOT NULL
		  AND due_at BETWEEN $2 AND $3
		  AND due_soon_notified_at IS NULL
		ORDER BY due_at ASC
		LIMIT $4
	`, models.TaskStatusOpen, now, now.Add(window), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// MarkDueSoonNotified is conditional on the flag still being unset, so two
// racing scanners cannot both claim the task.
func (r *TasksRepo) MarkDueSoonNotified(ctx context.Context, taskID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET due_soon_notified_at = $2
		WHERE task_id = $1 AND due_soon_notified_at IS NULL
	`, taskID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
