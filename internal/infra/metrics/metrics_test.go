package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestProgressionMetrics(t *testing.T) {
	XPAwarded.WithLabelValues("task_completed").Add(10)
	LevelUps.Inc()

	names := gatheredNames(t)
	for _, name := range []string{"focus_xp_awarded_total", "focus_level_ups_total"} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestSessionAndSweepMetrics(t *testing.T) {
	SessionsStarted.WithLabelValues("work").Inc()
	SessionsCompleted.WithLabelValues("work", "true").Inc()
	SessionMinutes.WithLabelValues("work").Observe(25)
	SweepRuns.WithLabelValues("manual").Inc()
	SweepUsers.WithLabelValues("success").Add(3)
	SweepDuration.Observe(0.2)
	RewardsPaid.WithLabelValues("streak").Inc()

	names := gatheredNames(t)
	expected := []string{
		"focus_sessions_started_total",
		"focus_sessions_completed_total",
		"focus_session_minutes",
		"focus_sweep_runs_total",
		"focus_sweep_users_total",
		"focus_sweep_duration_seconds",
		"focus_rewards_paid_total",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}
