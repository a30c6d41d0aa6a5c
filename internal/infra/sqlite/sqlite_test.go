package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tutu-network/focus/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *DB, id string) domain.User {
	t.Helper()
	u := domain.User{
		ID:             id,
		Name:           "user " + id,
		Level:          1,
		DailyTaskLimit: 3,
		Active:         true,
		CreatedAt:      time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC),
	}
	if err := db.InsertUser(context.Background(), u); err != nil {
		t.Fatalf("InsertUser() error: %v", err)
	}
	return u
}

var day1 = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "state.db")); os.IsNotExist(err) {
		t.Error("state.db should exist")
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	seedUser(t, db, "u1")
	db.Close()

	// Migrations are idempotent and data survives.
	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer db.Close()
	u, err := db.GetUser(context.Background(), "u1")
	if err != nil || u == nil {
		t.Fatalf("GetUser after reopen = %v, %v", u, err)
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

// ─── Users ──────────────────────────────────────────────────────────────────

func TestUser_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1")

	week := time.Date(2025, 6, 29, 0, 0, 0, 0, time.UTC)
	if err := db.SetUserXP(ctx, "u1", 250, 3); err != nil {
		t.Fatalf("SetUserXP: %v", err)
	}
	if err := db.SetStreakWatermark(ctx, "u1", 7); err != nil {
		t.Fatalf("SetStreakWatermark: %v", err)
	}
	if err := db.SetWeeklyWatermark(ctx, "u1", week, 100); err != nil {
		t.Fatalf("SetWeeklyWatermark: %v", err)
	}

	u, err := db.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.XP != 250 || u.Level != 3 {
		t.Errorf("xp/level = %d/%d", u.XP, u.Level)
	}
	if u.LastStreakRewardMilestone != 7 || u.LastWeeklyRewardTier != 100 {
		t.Errorf("watermarks = %d/%d", u.LastStreakRewardMilestone, u.LastWeeklyRewardTier)
	}
	if !u.WeeklyRewardWeek.Equal(week) {
		t.Errorf("weekly week = %v", u.WeeklyRewardWeek)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	db := newTestDB(t)
	u, err := db.GetUser(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetUser error: %v", err)
	}
	if u != nil {
		t.Error("expected nil for missing user")
	}
}

func TestSetUserXP_Missing(t *testing.T) {
	db := newTestDB(t)
	err := db.SetUserXP(context.Background(), "missing", 10, 1)
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestListActiveUserIDs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "a")
	seedUser(t, db, "b")
	seedUser(t, db, "c")
	if err := db.SetUserActive(ctx, "b", false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}

	ids, err := db.ListActiveUserIDs(ctx)
	if err != nil {
		t.Fatalf("ListActiveUserIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Errorf("ids = %v, want [a c]", ids)
	}
}

// ─── Tasks ──────────────────────────────────────────────────────────────────

func TestTask_UniqueOrderPerDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1")

	first := domain.Task{ID: "t1", UserID: "u1", Title: "a", TaskDate: day1, Order: 0, CreatedAt: day1}
	if err := db.InsertTask(ctx, first); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	clash := domain.Task{ID: "t2", UserID: "u1", Title: "b", TaskDate: day1, Order: 0, CreatedAt: day1}
	if err := db.InsertTask(ctx, clash); !errors.Is(err, domain.ErrDuplicateOrder) {
		t.Errorf("duplicate slot err = %v, want ErrDuplicateOrder", err)
	}

	// Same order on another day is fine.
	other := domain.Task{ID: "t3", UserID: "u1", Title: "c", TaskDate: day1.AddDate(0, 0, 1), Order: 0, CreatedAt: day1}
	if err := db.InsertTask(ctx, other); err != nil {
		t.Errorf("other day insert: %v", err)
	}

	n, err := db.CountTasksForDay(ctx, "u1", day1)
	if err != nil || n != 1 {
		t.Errorf("CountTasksForDay = %d, %v", n, err)
	}
}

func TestTask_CompleteIsConditional(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1")
	_ = db.InsertTask(ctx, domain.Task{ID: "t1", UserID: "u1", Title: "a", TaskDate: day1, CreatedAt: day1})

	at := day1.Add(10 * time.Hour)
	ok, err := db.SetTaskCompleted(ctx, "t1", at, 30)
	if err != nil || !ok {
		t.Fatalf("first complete = %v, %v", ok, err)
	}
	ok, err = db.SetTaskCompleted(ctx, "t1", at, 30)
	if err != nil || ok {
		t.Errorf("second complete = %v, %v; want false", ok, err)
	}

	task, _ := db.GetTask(ctx, "t1")
	if !task.Completed || !task.CompletedAt.Equal(at) || task.ActualTime != 30 {
		t.Errorf("task = %+v", task)
	}

	ok, _ = db.SetTaskUncompleted(ctx, "t1")
	if !ok {
		t.Error("uncomplete should succeed")
	}
	task, _ = db.GetTask(ctx, "t1")
	if task.Completed || !task.CompletedAt.IsZero() {
		t.Errorf("task after uncomplete = %+v", task)
	}
}

func TestTask_CompletionQueries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1")

	for i, id := range []string{"t1", "t2", "t3"} {
		d := day1.AddDate(0, 0, i)
		_ = db.InsertTask(ctx, domain.Task{ID: id, UserID: "u1", Title: id, TaskDate: d, CreatedAt: d})
		_, _ = db.SetTaskCompleted(ctx, id, d.Add(12*time.Hour), 0)
	}

	times, err := db.CompletedTaskTimes(ctx, "u1", day1, day1.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("CompletedTaskTimes: %v", err)
	}
	if len(times) != 2 {
		t.Errorf("got %d completions in window, want 2", len(times))
	}

	n, err := db.CountCompletedTasks(ctx, "u1", day1, day1.AddDate(0, 0, 7))
	if err != nil || n != 3 {
		t.Errorf("CountCompletedTasks = %d, %v", n, err)
	}
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1")

	boom := errors.New("boom")
	err := db.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertTask(ctx, domain.Task{ID: "t1", UserID: "u1", Title: "a", TaskDate: day1, CreatedAt: day1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update err = %v, want boom", err)
	}

	task, err := db.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task != nil {
		t.Error("insert should have been rolled back")
	}
}

// ─── Sessions ───────────────────────────────────────────────────────────────

func newSession(id, user string) domain.FocusSession {
	start := day1.Add(9 * time.Hour)
	return domain.FocusSession{
		ID: id, UserID: user, Type: domain.SessionWork, Duration: 25,
		StartTime: start, SessionDate: day1,
	}
}

func TestSession_OneActivePerUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1")
	seedUser(t, db, "u2")

	if err := db.InsertSession(ctx, newSession("s1", "u1")); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}
	if err := db.InsertSession(ctx, newSession("s2", "u1")); !errors.Is(err, domain.ErrActiveSessionExists) {
		t.Errorf("second active err = %v, want ErrActiveSessionExists", err)
	}
	if err := db.InsertSession(ctx, newSession("s3", "u2")); err != nil {
		t.Errorf("other user's session: %v", err)
	}

	// Completing frees the slot.
	s := newSession("s1", "u1")
	s.EndTime = s.StartTime.Add(25 * time.Minute)
	s.XPEarned = 25
	ok, err := db.MarkSessionCompleted(ctx, s)
	if err != nil || !ok {
		t.Fatalf("MarkSessionCompleted = %v, %v", ok, err)
	}
	if ok, _ := db.MarkSessionCompleted(ctx, s); ok {
		t.Error("second completion should not apply")
	}
	if err := db.InsertSession(ctx, newSession("s4", "u1")); err != nil {
		t.Errorf("insert after completion: %v", err)
	}

	n, err := db.CountCompletedSessions(ctx, "u1", day1, day1.AddDate(0, 0, 1))
	if err != nil || n != 1 {
		t.Errorf("CountCompletedSessions = %d, %v", n, err)
	}
}

func TestSession_DeleteCascadesDistractions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1")
	_ = db.InsertSession(ctx, newSession("s1", "u1"))
	_ = db.InsertDistraction(ctx, domain.Distraction{
		ID: "d1", UserID: "u1", SessionID: "s1", Type: "phone", Severity: 3, Impact: 3, CreatedAt: day1,
	})

	ok, err := db.DeleteActiveSession(ctx, "u2", "s1")
	if err != nil || ok {
		t.Errorf("delete by non-owner = %v, %v; want false", ok, err)
	}
	ok, err = db.DeleteActiveSession(ctx, "u1", "s1")
	if err != nil || !ok {
		t.Fatalf("DeleteActiveSession = %v, %v", ok, err)
	}

	d, _ := db.GetDistraction(ctx, "d1")
	if d != nil {
		t.Error("distraction should be deleted with its session")
	}
	s, _ := db.GetSession(ctx, "s1")
	if s != nil {
		t.Error("session should be gone")
	}
}

func TestSession_PauseBookkeeping(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1")
	_ = db.InsertSession(ctx, newSession("s1", "u1"))

	at := day1.Add(9*time.Hour + 5*time.Minute)
	ok, err := db.SetSessionPause(ctx, "s1", true, at, 0)
	if err != nil || !ok {
		t.Fatalf("SetSessionPause = %v, %v", ok, err)
	}
	s, _ := db.ActiveSession(ctx, "u1")
	if s == nil || !s.Paused || !s.PausedAt.Equal(at) {
		t.Errorf("active session = %+v", s)
	}
}
