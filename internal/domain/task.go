// Daily task types.
// A Task belongs to one user and one calendar day. A user may hold at most
// DailyTaskLimit tasks per day, each with a distinct position in that day's list.

package domain

import "time"

// DefaultDailyTaskLimit is the per-day task cap for users without an override.
const DefaultDailyTaskLimit = 3

// TaskCompletionXP is awarded every time a task is marked complete.
const TaskCompletionXP int64 = 10

// Task is one entry in a user's daily list.
type Task struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	TaskDate      time.Time `json:"task_date"` // civil day, midnight UTC
	Completed     bool      `json:"completed"`
	CompletedAt   time.Time `json:"completed_at,omitempty"`
	Order         int       `json:"order"`
	EstimatedTime int       `json:"estimated_time"` // minutes
	ActualTime    int       `json:"actual_time"`    // minutes
	CreatedAt     time.Time `json:"created_at"`
}

// TaskOrder is one (task, position) pair in a reorder request.
type TaskOrder struct {
	TaskID string `json:"task_id"`
	Order  int    `json:"order"`
}
