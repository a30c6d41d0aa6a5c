package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tutu-network/focus/internal/app/session"
	"github.com/tutu-network/focus/internal/domain"
	"github.com/tutu-network/focus/internal/infra/sqlite"
)

var start = time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db    *sqlite.DB
	clock *domain.FixedClock
	svc   *session.Service
}

func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, id := range users {
		err := db.InsertUser(context.Background(), domain.User{
			ID: id, Name: id, Level: 1, DailyTaskLimit: 3, Active: true, CreatedAt: start,
		})
		if err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	clock := &domain.FixedClock{T: start}
	return &fixture{db: db, clock: clock, svc: session.NewService(db, clock, time.UTC)}
}

func (f *fixture) start(t *testing.T, userID string, typ domain.SessionType, minutes int) domain.FocusSession {
	t.Helper()
	s, err := f.svc.Start(context.Background(), userID, typ, minutes)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func (f *fixture) xp(t *testing.T, userID string) int64 {
	t.Helper()
	u, err := f.db.GetUser(context.Background(), userID)
	if err != nil || u == nil {
		t.Fatalf("get user: %v", err)
	}
	return u.XP
}

// ─── Start ──────────────────────────────────────────────────────────────────

func TestStart(t *testing.T) {
	f := newFixture(t, "u1")
	s := f.start(t, "u1", domain.SessionWork, 25)

	if s.ID == "" || s.Completed || s.Duration != 25 {
		t.Errorf("unexpected session %+v", s)
	}
	if !s.StartTime.Equal(start) {
		t.Errorf("start time = %v", s.StartTime)
	}
	if want := time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC); !s.SessionDate.Equal(want) {
		t.Errorf("session date = %v, want %v", s.SessionDate, want)
	}

	active, err := f.svc.Active(context.Background(), "u1")
	if err != nil || active == nil || active.ID != s.ID {
		t.Errorf("active = %+v, %v", active, err)
	}
}

func TestStart_SecondActiveRejected(t *testing.T) {
	f := newFixture(t, "u1")
	f.start(t, "u1", domain.SessionWork, 25)

	_, err := f.svc.Start(context.Background(), "u1", domain.SessionShortBreak, 5)
	if !errors.Is(err, domain.ErrActiveSessionExists) {
		t.Errorf("expected active session exists, got %v", err)
	}
}

func TestStart_Validation(t *testing.T) {
	f := newFixture(t, "u1")
	cases := []struct {
		typ     domain.SessionType
		minutes int
	}{
		{"nap", 25},
		{domain.SessionWork, 0},
		{domain.SessionWork, 241},
	}
	for _, tc := range cases {
		_, err := f.svc.Start(context.Background(), "u1", tc.typ, tc.minutes)
		if domain.KindOf(err) != domain.KindValidation {
			t.Errorf("Start(%q, %d): expected validation error, got %v", tc.typ, tc.minutes, err)
		}
	}
}

func TestStart_Concurrent(t *testing.T) {
	f := newFixture(t, "u1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Start(context.Background(), "u1", domain.SessionWork, 25)
			if err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrActiveSessionExists) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if started != 1 {
		t.Errorf("started = %d, want 1", started)
	}
}

// ─── Complete ───────────────────────────────────────────────────────────────

func TestComplete_WorkSession(t *testing.T) {
	f := newFixture(t, "u1")
	s := f.start(t, "u1", domain.SessionWork, 25)
	f.clock.Advance(25 * time.Minute)

	res, err := f.svc.Complete(context.Background(), "u1", s.ID, session.CompleteInput{Rating: 4, Notes: "good"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.XPEarned != 25 || res.ActualDuration != 25 || !res.CompletedOnTime {
		t.Errorf("result = %+v", res)
	}
	if !res.Session.Completed || res.Session.Rating != 4 || res.Session.Notes != "good" {
		t.Errorf("session = %+v", res.Session)
	}
	if res.Progress.TotalXP != 25 {
		t.Errorf("total xp = %d", res.Progress.TotalXP)
	}

	stored, err := f.db.GetSession(context.Background(), s.ID)
	if err != nil || stored == nil {
		t.Fatalf("get session: %v", err)
	}
	if !stored.Completed || !stored.EndTime.Equal(f.clock.Now()) || stored.XPEarned != 25 {
		t.Errorf("stored = %+v", stored)
	}
}

func TestComplete_BreakAndOnTime(t *testing.T) {
	f := newFixture(t, "u1")
	s := f.start(t, "u1", domain.SessionShortBreak, 10)

	// 8 of 10 planned minutes is under the 90% threshold.
	end := start.Add(8 * time.Minute)
	res, err := f.svc.Complete(context.Background(), "u1", s.ID, session.CompleteInput{EndTime: end})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.XPEarned != 5 || res.ActualDuration != 8 || res.CompletedOnTime {
		t.Errorf("result = %+v", res)
	}
}

func TestComplete_Twice(t *testing.T) {
	f := newFixture(t, "u1")
	s := f.start(t, "u1", domain.SessionWork, 25)
	ctx := context.Background()

	if _, err := f.svc.Complete(ctx, "u1", s.ID, session.CompleteInput{}); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	_, err := f.svc.Complete(ctx, "u1", s.ID, session.CompleteInput{})
	if !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Errorf("expected already completed, got %v", err)
	}
	if xp := f.xp(t, "u1"); xp != 25 {
		t.Errorf("xp = %d, want 25", xp)
	}
}

func TestComplete_Concurrent(t *testing.T) {
	f := newFixture(t, "u1")
	s := f.start(t, "u1", domain.SessionWork, 25)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Complete(context.Background(), "u1", s.ID, session.CompleteInput{})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
	if xp := f.xp(t, "u1"); xp != 25 {
		t.Errorf("xp = %d, want 25", xp)
	}
}

func TestComplete_EndBeforeStart(t *testing.T) {
	f := newFixture(t, "u1")
	s := f.start(t, "u1", domain.SessionWork, 25)

	_, err := f.svc.Complete(context.Background(), "u1", s.ID, session.CompleteInput{EndTime: start.Add(-time.Minute)})
	if domain.KindOf(err) != domain.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestComplete_ForeignSession(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	s := f.start(t, "u1", domain.SessionWork, 25)

	_, err := f.svc.Complete(context.Background(), "u2", s.ID, session.CompleteInput{})
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected session not found, got %v", err)
	}
}

// ─── Pause / Resume ─────────────────────────────────────────────────────────

func TestPauseResume(t *testing.T) {
	f := newFixture(t, "u1")
	s := f.start(t, "u1", domain.SessionWork, 25)
	ctx := context.Background()

	f.clock.Advance(5 * time.Minute)
	paused, err := f.svc.Pause(ctx, "u1", s.ID)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !paused.Paused || !paused.PausedAt.Equal(f.clock.Now()) {
		t.Errorf("paused = %+v", paused)
	}
	if _, err := f.svc.Pause(ctx, "u1", s.ID); !errors.Is(err, domain.ErrAlreadyInState) {
		t.Errorf("double pause: got %v", err)
	}

	f.clock.Advance(3 * time.Minute)
	resumed, err := f.svc.Resume(ctx, "u1", s.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Paused || resumed.PausedSeconds != 180 {
		t.Errorf("resumed = %+v", resumed)
	}
	if _, err := f.svc.Resume(ctx, "u1", s.ID); !errors.Is(err, domain.ErrAlreadyInState) {
		t.Errorf("double resume: got %v", err)
	}

	// Paused while completing: the open pause is banked too.
	f.clock.Advance(10 * time.Minute)
	if _, err := f.svc.Pause(ctx, "u1", s.ID); err != nil {
		t.Fatalf("second pause: %v", err)
	}
	f.clock.Advance(2 * time.Minute)
	res, err := f.svc.Complete(ctx, "u1", s.ID, session.CompleteInput{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.PausedMinutes != 5 {
		t.Errorf("paused minutes = %d, want 5", res.PausedMinutes)
	}
	if res.ActualDuration != 20 {
		t.Errorf("actual duration = %d, want 20", res.ActualDuration)
	}

	if _, err := f.svc.Pause(ctx, "u1", s.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("pause after complete: got %v", err)
	}
}

// ─── Cancel ─────────────────────────────────────────────────────────────────

func TestCancel_ThenStart(t *testing.T) {
	f := newFixture(t, "u1")
	s := f.start(t, "u1", domain.SessionWork, 25)
	ctx := context.Background()

	if _, err := f.svc.AddDistraction(ctx, "u1", s.ID, session.DistractionInput{Type: "phone"}); err != nil {
		t.Fatalf("add distraction: %v", err)
	}
	if err := f.svc.Cancel(ctx, "u1", s.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if stored, _ := f.db.GetSession(ctx, s.ID); stored != nil {
		t.Error("cancelled session should be deleted")
	}
	if xp := f.xp(t, "u1"); xp != 0 {
		t.Errorf("xp = %d, want 0", xp)
	}
	if err := f.svc.Cancel(ctx, "u1", s.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("second cancel: got %v", err)
	}

	f.start(t, "u1", domain.SessionWork, 25)
}

func TestCancel_CompletedSession(t *testing.T) {
	f := newFixture(t, "u1")
	s := f.start(t, "u1", domain.SessionWork, 25)
	ctx := context.Background()
	if _, err := f.svc.Complete(ctx, "u1", s.ID, session.CompleteInput{}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := f.svc.Cancel(ctx, "u1", s.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected session not found, got %v", err)
	}
	history, err := f.svc.History(ctx, "u1", 0)
	if err != nil || len(history) != 1 {
		t.Errorf("history = %v, %v", history, err)
	}
}

// ─── Distractions ───────────────────────────────────────────────────────────

func TestDistractions(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	s := f.start(t, "u1", domain.SessionWork, 25)
	ctx := context.Background()

	d, err := f.svc.AddDistraction(ctx, "u1", s.ID, session.DistractionInput{Type: "chat", DurationSeconds: 30, Severity: 5})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if d.Severity != 5 || d.Impact != domain.DefaultDistractionScore {
		t.Errorf("scores = %d/%d", d.Severity, d.Impact)
	}

	if _, err := f.svc.AddDistraction(ctx, "u1", s.ID, session.DistractionInput{Type: "chat", Impact: 9}); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("impact 9: got %v", err)
	}
	if _, err := f.svc.AddDistraction(ctx, "u2", s.ID, session.DistractionInput{Type: "chat"}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("foreign session: got %v", err)
	}

	if _, err := f.svc.Complete(ctx, "u1", s.ID, session.CompleteInput{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.AddDistraction(ctx, "u1", s.ID, session.DistractionInput{Type: "late"}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("completed session: got %v", err)
	}

	// Resolving stays possible after completion.
	resolved, err := f.svc.ResolveDistraction(ctx, "u1", d.ID)
	if err != nil || !resolved.Resolved {
		t.Fatalf("resolve = %+v, %v", resolved, err)
	}
	if _, err := f.svc.ResolveDistraction(ctx, "u1", d.ID); !errors.Is(err, domain.ErrAlreadyInState) {
		t.Errorf("second resolve: got %v", err)
	}
	if _, err := f.svc.ResolveDistraction(ctx, "u2", d.ID); !errors.Is(err, domain.ErrDistractionNotFound) {
		t.Errorf("foreign resolve: got %v", err)
	}

	list, err := f.svc.Distractions(ctx, "u1", s.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || !list[0].Resolved {
		t.Errorf("list = %+v", list)
	}
}
