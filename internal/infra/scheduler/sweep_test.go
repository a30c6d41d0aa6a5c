package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tutu-network/focus/internal/domain"
)

var now = time.Date(2025, 7, 2, 18, 0, 0, 0, time.UTC)

type fakeUsers struct {
	ids []string
	err error
}

func (f *fakeUsers) ListActiveUserIDs(context.Context) ([]string, error) {
	return f.ids, f.err
}

// fakeRewards returns queued errors per user, then success.
type fakeRewards struct {
	mu     sync.Mutex
	errs   map[string][]error
	calls  map[string]int
	asOf   []time.Time
	reward int64
	hook   func(userID string)
}

func newFakeRewards() *fakeRewards {
	return &fakeRewards{errs: map[string][]error{}, calls: map[string]int{}}
}

func (f *fakeRewards) CheckAll(_ context.Context, userID string, asOf time.Time) (domain.RewardCheck, error) {
	f.mu.Lock()
	f.calls[userID]++
	f.asOf = append(f.asOf, asOf)
	var err error
	if q := f.errs[userID]; len(q) > 0 {
		err, f.errs[userID] = q[0], q[1:]
	}
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(userID)
	}
	if err != nil {
		return domain.RewardCheck{}, err
	}
	return domain.RewardCheck{UserID: userID, Streak: domain.StreakReward{StreakReward: f.reward}}, nil
}

var errTransient = fmt.Errorf("insert: %w: database is locked", domain.ErrStorage)

func newTestSweep(t *testing.T, users UserLister, rewards RewardChecker, cfg Config) (*Sweep, *[]time.Duration) {
	t.Helper()
	s, err := NewSweep(users, rewards, &domain.FixedClock{T: now}, cfg)
	if err != nil {
		t.Fatalf("NewSweep() error: %v", err)
	}
	var waits []time.Duration
	s.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return s, &waits
}

// ─── RunOnce ────────────────────────────────────────────────────────────────

func TestRunOnce_IsolatesFailures(t *testing.T) {
	rewards := newFakeRewards()
	rewards.reward = 50
	rewards.errs["b"] = []error{domain.ErrUserNotFound}
	s, _ := newTestSweep(t, &fakeUsers{ids: []string{"a", "b", "c"}}, rewards, DefaultConfig())

	sum, err := s.RunOnce(context.Background(), now, TriggerManual)
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if sum.Processed != 3 || sum.Successful != 2 || sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.Failures) != 1 || sum.Failures[0].UserID != "b" || sum.Failures[0].Kind != "not_found" {
		t.Errorf("failures = %+v", sum.Failures)
	}
	if sum.Failures[0].Attempts != 1 {
		t.Errorf("non-transient error retried: attempts = %d", sum.Failures[0].Attempts)
	}
	if sum.RewardedXP != 100 {
		t.Errorf("rewarded xp = %d, want 100", sum.RewardedXP)
	}
	if rewards.calls["c"] != 1 {
		t.Error("user after the failure should still be processed")
	}
}

func TestRunOnce_RetriesTransient(t *testing.T) {
	rewards := newFakeRewards()
	rewards.errs["a"] = []error{errTransient, errTransient}
	cfg := DefaultConfig()
	cfg.Retry = RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}
	s, waits := newTestSweep(t, &fakeUsers{ids: []string{"a"}}, rewards, cfg)

	sum, err := s.RunOnce(context.Background(), now, TriggerManual)
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if sum.Successful != 1 || sum.Failed != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if rewards.calls["a"] != 3 {
		t.Errorf("calls = %d, want 3", rewards.calls["a"])
	}
	if len(*waits) != 2 || (*waits)[0] != time.Second || (*waits)[1] != 2*time.Second {
		t.Errorf("waits = %v, want [1s 2s]", *waits)
	}
}

func TestRunOnce_TransientExhausted(t *testing.T) {
	rewards := newFakeRewards()
	rewards.errs["a"] = []error{errTransient, errTransient, errTransient}
	cfg := DefaultConfig()
	cfg.Retry = RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}
	s, _ := newTestSweep(t, &fakeUsers{ids: []string{"a", "b"}}, rewards, cfg)

	sum, err := s.RunOnce(context.Background(), now, TriggerManual)
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if sum.Failed != 1 || sum.Successful != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if f := sum.Failures[0]; f.Attempts != 2 || f.Kind != "transient" {
		t.Errorf("failure = %+v", f)
	}
}

func TestRunOnce_ListError(t *testing.T) {
	s, _ := newTestSweep(t, &fakeUsers{err: errTransient}, newFakeRewards(), DefaultConfig())
	if _, err := s.RunOnce(context.Background(), now, TriggerManual); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("RunOnce() = %v, want storage error", err)
	}
	if _, ok := s.LastSummary(); ok {
		t.Error("failed run should not be recorded")
	}
}

func TestRunOnce_RejectsOverlap(t *testing.T) {
	rewards := newFakeRewards()
	entered := make(chan struct{})
	release := make(chan struct{})
	rewards.hook = func(string) {
		close(entered)
		<-release
	}
	s, _ := newTestSweep(t, &fakeUsers{ids: []string{"a"}}, rewards, DefaultConfig())

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background(), now, TriggerScheduled)
		done <- err
	}()
	<-entered

	if _, err := s.Trigger(context.Background()); !errors.Is(err, domain.ErrSweepInProgress) {
		t.Errorf("overlapping Trigger() = %v, want ErrSweepInProgress", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Free again once the first run finished.
	rewards.hook = nil
	if _, err := s.Trigger(context.Background()); err != nil {
		t.Errorf("Trigger() after run = %v", err)
	}
}

func TestLastSummary(t *testing.T) {
	s, _ := newTestSweep(t, &fakeUsers{ids: []string{"a"}}, newFakeRewards(), DefaultConfig())
	if _, ok := s.LastSummary(); ok {
		t.Fatal("no summary expected before the first run")
	}

	if _, err := s.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	sum, ok := s.LastSummary()
	if !ok {
		t.Fatal("summary expected")
	}
	if sum.Trigger != TriggerManual || !sum.AsOf.Equal(now) || sum.Processed != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

// ─── Schedule ───────────────────────────────────────────────────────────────

func TestNextRun(t *testing.T) {
	s, _ := newTestSweep(t, &fakeUsers{}, newFakeRewards(), DefaultConfig())

	midnight := time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC)
	if got := s.NextRun(now); !got.Equal(midnight) {
		t.Errorf("NextRun(%v) = %v, want %v", now, got, midnight)
	}
	if got := s.NextRun(midnight); !got.Equal(midnight.AddDate(0, 0, 1)) {
		t.Errorf("NextRun(midnight) = %v, want the next day", got)
	}

	west := time.FixedZone("UTC-5", -5*3600)
	cfg := Config{At: "21:30", Location: west}
	s, _ = newTestSweep(t, &fakeUsers{}, newFakeRewards(), cfg)
	// 18:00 UTC is 13:00 local; the run is 21:30 local the same day.
	want := time.Date(2025, 7, 2, 21, 30, 0, 0, west)
	if got := s.NextRun(now); !got.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", got, want)
	}
}

func TestRun_EvaluatesClosingDay(t *testing.T) {
	rewards := newFakeRewards()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rewards.hook = func(string) { cancel() }
	s, waits := newTestSweep(t, &fakeUsers{ids: []string{"a"}}, rewards, DefaultConfig())
	s.wait = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
	if len(*waits) != 1 || (*waits)[0] != 6*time.Hour {
		t.Errorf("waits = %v, want [6h]", *waits)
	}

	want := time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	if len(rewards.asOf) != 1 || !rewards.asOf[0].Equal(want) {
		t.Errorf("asOf = %v, want %v", rewards.asOf, want)
	}
	if sum, ok := s.LastSummary(); !ok || sum.Trigger != TriggerScheduled {
		t.Errorf("last summary = %+v", sum)
	}
}

// ─── Config ─────────────────────────────────────────────────────────────────

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in     string
		h, m   int
		wantOK bool
	}{
		{"00:00", 0, 0, true},
		{"23:59", 23, 59, true},
		{" 7:05 ", 7, 5, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"noon", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		h, m, err := ParseTimeOfDay(tt.in)
		if (err == nil) != tt.wantOK || h != tt.h || m != tt.m {
			t.Errorf("ParseTimeOfDay(%q) = %d, %d, %v", tt.in, h, m, err)
		}
	}

	if _, err := NewSweep(&fakeUsers{}, newFakeRewards(), domain.SystemClock{}, Config{At: "25:00"}); err == nil {
		t.Error("NewSweep() should reject a bad fire time")
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := cfg.Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}
