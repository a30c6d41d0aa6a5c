// Package scheduler runs the daily reward sweep.
//
// Once a day, at a fixed wall-clock time in the server zone, the sweep loads
// every active user and runs the combined streak and weekly reward check for
// each one. Users are independent work units: a failing user is recorded and
// the batch moves on. Double payment is prevented by the reward watermarks in
// storage, not by the sweep; the sweep only refuses to overlap itself.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tutu-network/focus/internal/domain"
	"github.com/tutu-network/focus/internal/infra/metrics"
)

// Trigger labels.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// UserLister yields the users a sweep visits.
type UserLister interface {
	ListActiveUserIDs(ctx context.Context) ([]string, error)
}

// RewardChecker runs both reward streams for one user.
type RewardChecker interface {
	CheckAll(ctx context.Context, userID string, asOf time.Time) (domain.RewardCheck, error)
}

// ─── Configuration ──────────────────────────────────────────────────────────

// Config configures the sweep.
type Config struct {
	At       string         // "HH:MM" wall-clock fire time (default "00:00")
	Location *time.Location // zone of At and of reward day boundaries (default UTC)
	Retry    RetryConfig
}

// DefaultConfig returns production sweep defaults.
func DefaultConfig() Config {
	return Config{
		At:       "00:00",
		Location: time.UTC,
		Retry:    DefaultRetryConfig(),
	}
}

// ParseTimeOfDay parses "HH:MM" in 24-hour form.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time of day %q: bad hour", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time of day %q: bad minute", s)
	}
	return hour, minute, nil
}

// ─── Summary ────────────────────────────────────────────────────────────────

// Failure records one user the sweep could not process.
type Failure struct {
	UserID   string `json:"user_id"`
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	Attempts int    `json:"attempts"`
}

// Summary reports one sweep run.
type Summary struct {
	Trigger    string    `json:"trigger"`
	AsOf       time.Time `json:"as_of"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Processed  int       `json:"processed"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Failures   []Failure `json:"failures,omitempty"`
	RewardedXP int64     `json:"rewarded_xp"`
}

// ─── Sweep ──────────────────────────────────────────────────────────────────

// Sweep fans the reward check out over all active users.
type Sweep struct {
	users   UserLister
	rewards RewardChecker
	clock   domain.Clock
	loc     *time.Location
	retry   RetryConfig

	hour, minute int

	running atomic.Bool

	mu   sync.Mutex
	last *Summary

	// wait blocks for d or until ctx ends; replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

// NewSweep creates a sweep. It fails only on a malformed Config.At.
func NewSweep(users UserLister, rewards RewardChecker, clock domain.Clock, cfg Config) (*Sweep, error) {
	if cfg.At == "" {
		cfg.At = "00:00"
	}
	hour, minute, err := ParseTimeOfDay(cfg.At)
	if err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Sweep{
		users:   users,
		rewards: rewards,
		clock:   clock,
		loc:     cfg.Location,
		retry:   cfg.Retry,
		hour:    hour,
		minute:  minute,
		wait:    sleepCtx,
	}, nil
}

// Trigger runs a manual sweep evaluated as of now.
func (s *Sweep) Trigger(ctx context.Context) (Summary, error) {
	return s.RunOnce(ctx, s.clock.Now(), TriggerManual)
}

// RunOnce checks every active user as of asOf. A second call while one is in
// flight fails with domain.ErrSweepInProgress. Per-user failures are reported
// in the summary, not as an error; the error is reserved for failing to load
// the user list or for ctx ending mid-batch.
func (s *Sweep) RunOnce(ctx context.Context, asOf time.Time, trigger string) (Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Summary{}, domain.ErrSweepInProgress
	}
	defer s.running.Store(false)

	sum := Summary{Trigger: trigger, AsOf: asOf, StartedAt: s.clock.Now()}
	began := time.Now()
	metrics.SweepRuns.WithLabelValues(trigger).Inc()

	ids, err := s.users.ListActiveUserIDs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("sweep: list users: %w", err)
	}
	log.Printf("[sweep] %s run as of %s: %d active users", trigger, asOf.Format(time.RFC3339), len(ids))

	var runErr error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		sum.Processed++

		res, attempts, err := s.checkUser(ctx, id, asOf)
		if err != nil {
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{
				UserID:   id,
				Error:    err.Error(),
				Kind:     domain.KindOf(err).String(),
				Attempts: attempts,
			})
			metrics.SweepUsers.WithLabelValues("failed").Inc()
			log.Printf("[sweep] user %s failed after %d attempt(s): %v", id, attempts, err)
			continue
		}
		sum.Successful++
		sum.RewardedXP += res.Streak.StreakReward + res.Weekly.WeeklyReward
		metrics.SweepUsers.WithLabelValues("ok").Inc()
	}

	sum.FinishedAt = s.clock.Now()
	metrics.SweepDuration.Observe(time.Since(began).Seconds())
	log.Printf("[sweep] done: processed=%d successful=%d failed=%d rewarded_xp=%d",
		sum.Processed, sum.Successful, sum.Failed, sum.RewardedXP)

	s.mu.Lock()
	last := sum
	s.last = &last
	s.mu.Unlock()

	return sum, runErr
}

// checkUser runs one user's check, retrying transient errors.
func (s *Sweep) checkUser(ctx context.Context, userID string, asOf time.Time) (domain.RewardCheck, int, error) {
	limit := s.retry.attempts()
	var err error
	for attempt := 1; ; attempt++ {
		var res domain.RewardCheck
		res, err = s.rewards.CheckAll(ctx, userID, asOf)
		if err == nil {
			return res, attempt, nil
		}
		if !domain.IsTransient(err) || attempt >= limit {
			return domain.RewardCheck{}, attempt, err
		}
		if werr := s.wait(ctx, s.retry.Backoff(attempt)); werr != nil {
			return domain.RewardCheck{}, attempt, err
		}
	}
}

// LastSummary returns the most recent completed run, if any.
func (s *Sweep) LastSummary() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Summary{}, false
	}
	return *s.last, true
}

// NextRun returns the first fire instant strictly after t.
func (s *Sweep) NextRun(t time.Time) time.Time {
	local := t.In(s.loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d, s.hour, s.minute, 0, 0, s.loc)
	if !next.After(t) {
		next = time.Date(y, m, d+1, s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}

// Run fires the sweep daily until ctx ends. Each automatic run evaluates as
// of one nanosecond before its fire instant, so a midnight run rewards the
// day (and on Sunday the week) that just closed.
func (s *Sweep) Run(ctx context.Context) error {
	log.Printf("[sweep] scheduled daily at %02d:%02d %s", s.hour, s.minute, s.loc)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next := s.NextRun(s.clock.Now())
		if err := s.wait(ctx, next.Sub(s.clock.Now())); err != nil {
			return err
		}

		_, err := s.RunOnce(ctx, next.Add(-time.Nanosecond), TriggerScheduled)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrSweepInProgress):
			log.Printf("[sweep] skipped: previous run still in progress")
		default:
			log.Printf("[sweep] run failed: %v", err)
		}
	}
}
