package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tutu-network/focus/internal/domain"
	"github.com/tutu-network/focus/internal/timewindow"
)

// ─── Task Repository ────────────────────────────────────────────────────────

const taskColumns = `id, user_id, title, description, task_date, completed, completed_at,
	ord, estimated_time, actual_time, created_at`

// InsertTask creates a task. A taken (user, day, order) slot yields
// domain.ErrDuplicateOrder.
func (c conn) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.Description, timewindow.FormatDay(t.TaskDate),
		t.Completed, nullableUnix(t.CompletedAt), t.Order,
		t.EstimatedTime, t.ActualTime, t.CreatedAt.Unix(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert task order %d: %w", t.Order, domain.ErrDuplicateOrder)
	}
	if err != nil {
		return storageErr("insert task", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil, nil when absent.
func (c conn) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasksForDay returns a user's tasks for one day ordered by position.
func (c conn) ListTasksForDay(ctx context.Context, userID string, day time.Time) ([]domain.Task, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = ? AND task_date = ? ORDER BY ord`,
		userID, timewindow.FormatDay(day),
	)
	if err != nil {
		return nil, storageErr("list tasks", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list tasks", err)
	}
	return tasks, nil
}

// CountTasksForDay returns how many tasks a user holds for one day.
func (c conn) CountTasksForDay(ctx context.Context, userID string, day time.Time) (int, error) {
	var n int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE user_id = ? AND task_date = ?`,
		userID, timewindow.FormatDay(day),
	).Scan(&n)
	if err != nil {
		return 0, storageErr("count tasks", err)
	}
	return n, nil
}

// SetTaskCompleted flips a task to completed only if it is currently open.
// Returns false when the task was already completed (or is absent).
func (c conn) SetTaskCompleted(ctx context.Context, id string, at time.Time, actualTime int) (bool, error) {
	res, err := c.q.ExecContext(ctx,
		`UPDATE tasks SET completed = 1, completed_at = ?, actual_time = ?
		 WHERE id = ? AND completed = 0`,
		at.Unix(), actualTime, id,
	)
	if err != nil {
		return false, storageErr("complete task", err)
	}
	return affected("complete task", res)
}

// SetTaskUncompleted reopens a completed task. Returns false when it was open.
func (c conn) SetTaskUncompleted(ctx context.Context, id string) (bool, error) {
	res, err := c.q.ExecContext(ctx,
		`UPDATE tasks SET completed = 0, completed_at = NULL WHERE id = ? AND completed = 1`, id)
	if err != nil {
		return false, storageErr("uncomplete task", err)
	}
	return affected("uncomplete task", res)
}

// UpdateTaskDetails stores the editable text and estimate fields.
func (c conn) UpdateTaskDetails(ctx context.Context, t domain.Task) error {
	_, err := c.q.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, estimated_time = ? WHERE id = ?`,
		t.Title, t.Description, t.EstimatedTime, t.ID,
	)
	if err != nil {
		return storageErr("update task", err)
	}
	return nil
}

// SetTaskOrder moves a task to a new position. A taken slot yields
// domain.ErrDuplicateOrder.
func (c conn) SetTaskOrder(ctx context.Context, id string, order int) error {
	_, err := c.q.ExecContext(ctx, `UPDATE tasks SET ord = ? WHERE id = ?`, order, id)
	if isUniqueViolation(err) {
		return fmt.Errorf("move task %s to %d: %w", id, order, domain.ErrDuplicateOrder)
	}
	if err != nil {
		return storageErr("reorder task", err)
	}
	return nil
}

// DeleteTask removes a task record.
func (c conn) DeleteTask(ctx context.Context, id string) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete task", err)
	}
	ok, err := affected("delete task", res)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrTaskNotFound
	}
	return nil
}

// CompletedTaskTimes returns completion instants of a user's tasks in [from, to).
func (c conn) CompletedTaskTimes(ctx context.Context, userID string, from, to time.Time) ([]time.Time, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT completed_at FROM tasks
		 WHERE user_id = ? AND completed = 1 AND completed_at >= ? AND completed_at < ?
		 ORDER BY completed_at`,
		userID, from.Unix(), to.Unix(),
	)
	if err != nil {
		return nil, storageErr("list completions", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, storageErr("scan completion", err)
		}
		times = append(times, fromUnix(ts))
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list completions", err)
	}
	return times, nil
}

// CountCompletedTasks counts a user's tasks completed in [from, to).
func (c conn) CountCompletedTasks(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var n int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks
		 WHERE user_id = ? AND completed = 1 AND completed_at >= ? AND completed_at < ?`,
		userID, from.Unix(), to.Unix(),
	).Scan(&n)
	if err != nil {
		return 0, storageErr("count completed tasks", err)
	}
	return n, nil
}

func scanTask(s scanner) (*domain.Task, error) {
	var t domain.Task
	var day string
	var completedAt sql.NullInt64
	var createdAt int64

	err := s.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &day, &t.Completed,
		&completedAt, &t.Order, &t.EstimatedTime, &t.ActualTime, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("scan task", err)
	}

	t.TaskDate, err = timewindow.ParseDay(day)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}
	t.CompletedAt = fromNullableUnix(completedAt)
	t.CreatedAt = fromUnix(createdAt)
	return &t, nil
}
