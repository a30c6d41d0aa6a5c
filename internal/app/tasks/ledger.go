// Package tasks implements the daily task ledger.
// Each user holds at most a fixed number of tasks per calendar day, and the
// tasks of one day occupy the dense positions 0..n-1. Creates, reorders and
// deletes each run in one store transaction, so neither rule is observable
// half-applied.
package tasks

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/focus/internal/app/engagement"
	"github.com/tutu-network/focus/internal/domain"
	"github.com/tutu-network/focus/internal/infra/metrics"
	"github.com/tutu-network/focus/internal/infra/sqlite"
	"github.com/tutu-network/focus/internal/timewindow"
)

const maxTitleLen = 200

// Ledger manages users' daily task lists.
type Ledger struct {
	db           *sqlite.DB
	clock        domain.Clock
	loc          *time.Location
	defaultLimit int
}

// NewLedger creates a ledger. defaultLimit applies to users without their own limit.
func NewLedger(db *sqlite.DB, clock domain.Clock, loc *time.Location, defaultLimit int) *Ledger {
	if defaultLimit <= 0 {
		defaultLimit = domain.DefaultDailyTaskLimit
	}
	return &Ledger{db: db, clock: clock, loc: loc, defaultLimit: defaultLimit}
}

// CreateInput describes a new task.
type CreateInput struct {
	Title         string
	Description   string
	TaskDate      time.Time // any instant on the intended civil day; only Y-M-D is used
	EstimatedTime int       // minutes
}

// UpdateInput carries optional edits; nil fields are left unchanged.
type UpdateInput struct {
	Title         *string
	Description   *string
	EstimatedTime *int
}

// Completion is returned by Complete. XPReward is the fixed task reward and
// Progress is the result of granting it.
type Completion struct {
	Task     domain.Task    `json:"task"`
	XPReward int64          `json:"xp_reward"`
	Progress domain.LevelUp `json:"progress"`
}

// Create adds a task to the user's list for in.TaskDate. The task takes the
// next free position; a full day yields *domain.DailyLimitError.
func (l *Ledger) Create(ctx context.Context, userID string, in CreateInput) (domain.Task, error) {
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return domain.Task{}, domain.Invalid("title", "required")
	case len(title) > maxTitleLen:
		return domain.Task{}, domain.Invalid("title", fmt.Sprintf("longer than %d characters", maxTitleLen))
	case in.TaskDate.IsZero():
		return domain.Task{}, domain.Invalid("task_date", "required")
	case in.EstimatedTime < 0:
		return domain.Task{}, domain.Invalid("estimated_time", "must not be negative")
	}

	now := l.clock.Now()
	day := civilDay(in.TaskDate)
	if day.Before(timewindow.Day(now, l.loc)) {
		metrics.TasksRejected.WithLabelValues("past_date").Inc()
		return domain.Task{}, domain.Invalid("task_date", "cannot create tasks for a past day")
	}

	task := domain.Task{
		ID:            uuid.New().String(),
		UserID:        userID,
		Title:         title,
		Description:   strings.TrimSpace(in.Description),
		TaskDate:      day,
		EstimatedTime: in.EstimatedTime,
		CreatedAt:     now,
	}

	err := l.db.Update(ctx, func(tx *sqlite.Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if user == nil {
			return domain.ErrUserNotFound
		}

		limit := user.DailyTaskLimit
		if limit <= 0 {
			limit = l.defaultLimit
		}

		count, err := tx.CountTasksForDay(ctx, userID, day)
		if err != nil {
			return err
		}
		if count >= limit {
			return &domain.DailyLimitError{Current: count, Limit: limit}
		}

		task.Order = count
		return tx.InsertTask(ctx, task)
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindInvariant {
			metrics.TasksRejected.WithLabelValues("daily_limit").Inc()
		}
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}

	metrics.TasksCreated.Inc()
	return task, nil
}

// Get returns one of the user's tasks.
func (l *Ledger) Get(ctx context.Context, userID, taskID string) (domain.Task, error) {
	task, err := l.db.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if task == nil || task.UserID != userID {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return *task, nil
}

// ListDay returns the user's tasks for one day, in list order.
func (l *Ledger) ListDay(ctx context.Context, userID string, day time.Time) ([]domain.Task, error) {
	return l.db.ListTasksForDay(ctx, userID, civilDay(day))
}

// Update edits a task's title, description or estimate.
func (l *Ledger) Update(ctx context.Context, userID, taskID string, in UpdateInput) (domain.Task, error) {
	var out domain.Task
	err := l.db.Update(ctx, func(tx *sqlite.Tx) error {
		task, err := ownedTask(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		if in.Title != nil {
			title := strings.TrimSpace(*in.Title)
			if title == "" || len(title) > maxTitleLen {
				return domain.Invalid("title", fmt.Sprintf("must be 1-%d characters", maxTitleLen))
			}
			task.Title = title
		}
		if in.Description != nil {
			task.Description = strings.TrimSpace(*in.Description)
		}
		if in.EstimatedTime != nil {
			if *in.EstimatedTime < 0 {
				return domain.Invalid("estimated_time", "must not be negative")
			}
			task.EstimatedTime = *in.EstimatedTime
		}
		if err := tx.UpdateTaskDetails(ctx, *task); err != nil {
			return err
		}
		out = *task
		return nil
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	return out, nil
}

// Reorder assigns new positions to some or all of one day's tasks.
//
// Target positions must be pairwise distinct, inside [0, count), and must not
// land on a task left out of the batch. Every referenced task must belong to
// the user and day. Any violation rejects the whole batch.
func (l *Ledger) Reorder(ctx context.Context, userID string, day time.Time, orders []domain.TaskOrder) ([]domain.Task, error) {
	if len(orders) == 0 {
		return nil, domain.Invalid("orders", "at least one task required")
	}

	seenOrder := make(map[int]bool, len(orders))
	seenTask := make(map[string]bool, len(orders))
	for _, o := range orders {
		if seenOrder[o.Order] {
			return nil, fmt.Errorf("reorder: order %d: %w", o.Order, domain.ErrDuplicateOrder)
		}
		seenOrder[o.Order] = true
		if seenTask[o.TaskID] {
			return nil, domain.Invalid("orders", "task "+o.TaskID+" listed twice")
		}
		seenTask[o.TaskID] = true
	}

	day = civilDay(day)
	var out []domain.Task
	err := l.db.Update(ctx, func(tx *sqlite.Tx) error {
		current, err := tx.ListTasksForDay(ctx, userID, day)
		if err != nil {
			return err
		}
		owned := make(map[string]bool, len(current))
		for _, t := range current {
			owned[t.ID] = true
		}

		for _, o := range orders {
			if !owned[o.TaskID] {
				return fmt.Errorf("reorder: task %s: %w", o.TaskID, domain.ErrOwnershipMismatch)
			}
			if o.Order < 0 || o.Order >= len(current) {
				return domain.Invalid("order", fmt.Sprintf("%d outside 0..%d", o.Order, len(current)-1))
			}
		}

		// Park the moving tasks on negative slots first so swaps inside the
		// batch never collide with each other.
		for i, o := range orders {
			if err := tx.SetTaskOrder(ctx, o.TaskID, -(i + 1)); err != nil {
				return err
			}
		}
		for _, o := range orders {
			if err := tx.SetTaskOrder(ctx, o.TaskID, o.Order); err != nil {
				return err
			}
		}

		out, err = tx.ListTasksForDay(ctx, userID, day)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reorder tasks: %w", err)
	}
	return out, nil
}

// Complete marks a task done, stamps completedAt and grants the task XP in
// the same transaction. A completed task yields domain.ErrAlreadyInState.
func (l *Ledger) Complete(ctx context.Context, userID, taskID string, actualTime int) (Completion, error) {
	if actualTime < 0 {
		return Completion{}, domain.Invalid("actual_time", "must not be negative")
	}

	now := l.clock.Now()
	var out Completion
	err := l.db.Update(ctx, func(tx *sqlite.Tx) error {
		task, err := ownedTask(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		if task.Completed {
			return domain.ErrAlreadyInState
		}

		ok, err := tx.SetTaskCompleted(ctx, taskID, now, actualTime)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyInState
		}

		progress, err := engagement.ApplyXP(ctx, tx, userID, domain.TaskCompletionXP, domain.XPTaskCompleted)
		if err != nil {
			return err
		}

		task.Completed = true
		task.CompletedAt = now
		task.ActualTime = actualTime
		out = Completion{Task: *task, XPReward: domain.TaskCompletionXP, Progress: progress}
		return nil
	})
	if err != nil {
		return Completion{}, fmt.Errorf("complete task: %w", err)
	}

	engagement.RecordXP(out.Progress, domain.XPTaskCompleted)
	metrics.TasksCompleted.Inc()
	return out, nil
}

// Uncomplete reopens a completed task. XP already granted is kept.
func (l *Ledger) Uncomplete(ctx context.Context, userID, taskID string) (domain.Task, error) {
	var out domain.Task
	err := l.db.Update(ctx, func(tx *sqlite.Tx) error {
		task, err := ownedTask(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		ok, err := tx.SetTaskUncompleted(ctx, taskID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyInState
		}
		task.Completed = false
		task.CompletedAt = time.Time{}
		out = *task
		return nil
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("uncomplete task: %w", err)
	}
	return out, nil
}

// Delete removes a task and closes the gap it leaves in the day's positions.
func (l *Ledger) Delete(ctx context.Context, userID, taskID string) error {
	err := l.db.Update(ctx, func(tx *sqlite.Tx) error {
		task, err := ownedTask(ctx, tx, userID, taskID)
		if err != nil {
			return err
		}
		if err := tx.DeleteTask(ctx, taskID); err != nil {
			return err
		}

		remaining, err := tx.ListTasksForDay(ctx, userID, task.TaskDate)
		if err != nil {
			return err
		}
		// Ascending moves only ever target a slot already vacated.
		for i, t := range remaining {
			if t.Order == i {
				continue
			}
			if err := tx.SetTaskOrder(ctx, t.ID, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	log.Printf("[tasks] user %s deleted task %s", userID, taskID)
	return nil
}

func ownedTask(ctx context.Context, tx *sqlite.Tx, userID, taskID string) (*domain.Task, error) {
	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil || task.UserID != userID {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

// civilDay keeps the Y-M-D of t as written and drops the rest.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
