// Package metrics provides Prometheus metrics for focus.
// Counters and histograms cover XP grants, the task ledger, focus sessions,
// reward payouts, the daily sweep, and health checks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Progression ────────────────────────────────────────────────────────────

// XPAwarded tracks XP granted by source (bonuses included).
var XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "focus",
	Name:      "xp_awarded_total",
	Help:      "Total XP granted, by source.",
}, []string{"source"})

// LevelUps tracks AddXP calls that crossed a level boundary.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "focus",
	Name:      "level_ups_total",
	Help:      "Total level-ups.",
})

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TasksCreated tracks tasks added to daily lists.
var TasksCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "focus",
	Name:      "tasks_created_total",
	Help:      "Total tasks created.",
})

// TasksRejected tracks task creates refused, by reason.
var TasksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "focus",
	Name:      "tasks_rejected_total",
	Help:      "Total task creates rejected.",
}, []string{"reason"})

// TasksCompleted tracks task completions.
var TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "focus",
	Name:      "tasks_completed_total",
	Help:      "Total task completions.",
})

// ─── Sessions ───────────────────────────────────────────────────────────────

// SessionsStarted tracks sessions started by type.
var SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "focus",
	Name:      "sessions_started_total",
	Help:      "Total focus sessions started.",
}, []string{"type"})

// SessionsCompleted tracks sessions completed by type and punctuality.
var SessionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "focus",
	Name:      "sessions_completed_total",
	Help:      "Total focus sessions completed.",
}, []string{"type", "on_time"})

// SessionsCancelled tracks cancelled sessions.
var SessionsCancelled = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "focus",
	Name:      "sessions_cancelled_total",
	Help:      "Total focus sessions cancelled.",
})

// SessionMinutes tracks actual session length in minutes.
var SessionMinutes = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "focus",
	Name:      "session_minutes",
	Help:      "Actual focus session length in minutes.",
	Buckets:   []float64{1, 5, 10, 15, 25, 45, 60, 90, 120},
}, []string{"type"})

// Distractions tracks distractions logged.
var Distractions = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "focus",
	Name:      "distractions_total",
	Help:      "Total distractions logged.",
})

// ─── Rewards ────────────────────────────────────────────────────────────────

// RewardsPaid tracks milestone rewards paid, by stream ("streak" or "weekly").
var RewardsPaid = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "focus",
	Name:      "rewards_paid_total",
	Help:      "Total milestone rewards paid.",
}, []string{"stream"})

// ─── Sweep ──────────────────────────────────────────────────────────────────

// SweepRuns tracks sweep executions by trigger ("scheduled" or "manual").
var SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "focus",
	Name:      "sweep_runs_total",
	Help:      "Total reward sweep runs.",
}, []string{"trigger"})

// SweepUsers tracks per-user sweep outcomes ("success" or "failure").
var SweepUsers = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "focus",
	Name:      "sweep_users_total",
	Help:      "Users processed by the reward sweep, by result.",
}, []string{"result"})

// SweepDuration tracks wall time of a sweep run.
var SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "focus",
	Name:      "sweep_duration_seconds",
	Help:      "Reward sweep duration in seconds.",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "focus",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
