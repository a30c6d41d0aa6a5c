// Focus session types.
// A FocusSession is one timed work or break interval. A user holds at most one
// uncompleted session; completed sessions are immutable history and cancelled
// sessions are deleted outright.

package domain

import (
	"math"
	"time"
)

// SessionType is the kind of interval being timed.
type SessionType string

const (
	SessionWork       SessionType = "work"
	SessionShortBreak SessionType = "short_break"
	SessionLongBreak  SessionType = "long_break"
)

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	switch t {
	case SessionWork, SessionShortBreak, SessionLongBreak:
		return true
	}
	return false
}

// CompletionXP returns the XP paid when a session of this type completes.
func (t SessionType) CompletionXP() int64 {
	if t == SessionWork {
		return 25
	}
	return 5
}

// Planned duration bounds, in minutes.
const (
	MinSessionMinutes = 1
	MaxSessionMinutes = 240
)

// OnTimeRatio is the share of the planned duration that counts as on time.
const OnTimeRatio = 0.9

// FocusSession is one timer interval.
type FocusSession struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	Type          SessionType `json:"session_type"`
	Duration      int         `json:"duration"` // planned minutes
	StartTime     time.Time   `json:"start_time"`
	SessionDate   time.Time   `json:"session_date"`
	EndTime       time.Time   `json:"end_time,omitempty"`
	Completed     bool        `json:"completed"`
	Paused        bool        `json:"paused"`
	PausedAt      time.Time   `json:"paused_at,omitempty"`
	PausedSeconds int64       `json:"paused_seconds"`
	XPEarned      int64       `json:"xp_earned"`
	Rating        int         `json:"rating,omitempty"` // 0 = unrated, else 1..5
	Notes         string      `json:"notes,omitempty"`
}

// ActualMinutes returns the wall-clock length between start and end rounded
// to the nearest minute.
func (s *FocusSession) ActualMinutes(end time.Time) int {
	return int(math.Round(end.Sub(s.StartTime).Minutes()))
}

// OnTime reports whether actual minutes reach 90% of the planned duration.
func (s *FocusSession) OnTime(actual int) bool {
	return float64(actual) >= OnTimeRatio*float64(s.Duration)
}

// SessionCompletion is returned by a successful Complete.
type SessionCompletion struct {
	Session         FocusSession `json:"session"`
	XPEarned        int64        `json:"xp_earned"`
	ActualDuration  int          `json:"actual_duration"`
	CompletedOnTime bool         `json:"completed_on_time"`
	PausedMinutes   int          `json:"paused_minutes"`
	Progress        LevelUp      `json:"progress"`
}

// Distraction is an interruption logged against a session.
type Distraction struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	SessionID       string    `json:"session_id"`
	Type            string    `json:"type"`
	Note            string    `json:"note,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	Severity        int       `json:"severity"`
	Impact          int       `json:"impact"`
	Resolved        bool      `json:"resolved"`
	CreatedAt       time.Time `json:"created_at"`
}

// DefaultDistractionScore is used when severity or impact is omitted.
const DefaultDistractionScore = 3
