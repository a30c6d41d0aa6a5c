// Package session implements the focus session state machine.
//
//	NONE → ACTIVE ⇄ ACTIVE(paused) → COMPLETED
//	                               ↘ CANCELLED (record deleted)
//
// A user holds at most one ACTIVE session. COMPLETED and CANCELLED have no
// exits; completion pays XP exactly once.
package session

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/focus/internal/app/engagement"
	"github.com/tutu-network/focus/internal/domain"
	"github.com/tutu-network/focus/internal/infra/metrics"
	"github.com/tutu-network/focus/internal/infra/sqlite"
	"github.com/tutu-network/focus/internal/timewindow"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxNotesLen         = 2000
)

// Service drives focus sessions through their lifecycle.
type Service struct {
	db    *sqlite.DB
	clock domain.Clock
	loc   *time.Location
}

// NewService creates a session service. Session dates are civil days in loc.
func NewService(db *sqlite.DB, clock domain.Clock, loc *time.Location) *Service {
	return &Service{db: db, clock: clock, loc: loc}
}

// CompleteInput carries the optional completion fields.
type CompleteInput struct {
	EndTime time.Time // zero means now
	Notes   string
	Rating  int // 0 = unrated
}

// DistractionInput describes an interruption. Zero Severity or Impact means
// domain.DefaultDistractionScore.
type DistractionInput struct {
	Type            string
	Note            string
	DurationSeconds int
	Severity        int
	Impact          int
}

// Start opens a new session for the user.
func (s *Service) Start(ctx context.Context, userID string, typ domain.SessionType, duration int) (domain.FocusSession, error) {
	if !typ.Valid() {
		return domain.FocusSession{}, domain.Invalid("session_type", fmt.Sprintf("unknown type %q", typ))
	}
	if duration < domain.MinSessionMinutes || duration > domain.MaxSessionMinutes {
		return domain.FocusSession{}, domain.Invalid("duration",
			fmt.Sprintf("must be %d-%d minutes", domain.MinSessionMinutes, domain.MaxSessionMinutes))
	}

	now := s.clock.Now()
	sess := domain.FocusSession{
		ID:          uuid.New().String(),
		UserID:      userID,
		Type:        typ,
		Duration:    duration,
		StartTime:   now,
		SessionDate: timewindow.Day(now, s.loc),
	}

	err := s.db.Update(ctx, func(tx *sqlite.Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if user == nil {
			return domain.ErrUserNotFound
		}

		active, err := tx.ActiveSession(ctx, userID)
		if err != nil {
			return err
		}
		if active != nil {
			return domain.ErrActiveSessionExists
		}
		return tx.InsertSession(ctx, sess)
	})
	if err != nil {
		return domain.FocusSession{}, fmt.Errorf("start session: %w", err)
	}

	metrics.SessionsStarted.WithLabelValues(string(typ)).Inc()
	return sess, nil
}

// Pause freezes the running session. Paused time is tracked separately and
// does not change how completion measures duration.
func (s *Service) Pause(ctx context.Context, userID, sessionID string) (domain.FocusSession, error) {
	now := s.clock.Now()
	return s.togglePause(ctx, userID, sessionID, "pause", func(sess *domain.FocusSession) error {
		if sess.Paused {
			return domain.ErrAlreadyInState
		}
		sess.Paused = true
		sess.PausedAt = now
		return nil
	})
}

// Resume restarts a paused session and banks the paused interval.
func (s *Service) Resume(ctx context.Context, userID, sessionID string) (domain.FocusSession, error) {
	now := s.clock.Now()
	return s.togglePause(ctx, userID, sessionID, "resume", func(sess *domain.FocusSession) error {
		if !sess.Paused {
			return domain.ErrAlreadyInState
		}
		sess.PausedSeconds += pausedFor(sess, now)
		sess.Paused = false
		sess.PausedAt = time.Time{}
		return nil
	})
}

func (s *Service) togglePause(ctx context.Context, userID, sessionID, op string, apply func(*domain.FocusSession) error) (domain.FocusSession, error) {
	var out domain.FocusSession
	err := s.db.Update(ctx, func(tx *sqlite.Tx) error {
		sess, err := activeSession(ctx, tx, userID, sessionID)
		if err != nil {
			return err
		}
		if err := apply(sess); err != nil {
			return err
		}
		ok, err := tx.SetSessionPause(ctx, sess.ID, sess.Paused, sess.PausedAt, sess.PausedSeconds)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrSessionNotFound
		}
		out = *sess
		return nil
	})
	if err != nil {
		return domain.FocusSession{}, fmt.Errorf("%s session: %w", op, err)
	}
	return out, nil
}

// AddDistraction logs an interruption against the user's active session.
func (s *Service) AddDistraction(ctx context.Context, userID, sessionID string, in DistractionInput) (domain.Distraction, error) {
	d := domain.Distraction{
		ID:              uuid.New().String(),
		UserID:          userID,
		SessionID:       sessionID,
		Type:            strings.TrimSpace(in.Type),
		Note:            strings.TrimSpace(in.Note),
		DurationSeconds: in.DurationSeconds,
		Severity:        scoreOrDefault(in.Severity),
		Impact:          scoreOrDefault(in.Impact),
		CreatedAt:       s.clock.Now(),
	}
	switch {
	case d.Type == "":
		return domain.Distraction{}, domain.Invalid("type", "required")
	case d.DurationSeconds < 0:
		return domain.Distraction{}, domain.Invalid("duration_seconds", "must not be negative")
	case d.Severity < 1 || d.Severity > 5:
		return domain.Distraction{}, domain.Invalid("severity", "must be 1-5")
	case d.Impact < 1 || d.Impact > 5:
		return domain.Distraction{}, domain.Invalid("impact", "must be 1-5")
	}

	err := s.db.Update(ctx, func(tx *sqlite.Tx) error {
		if _, err := activeSession(ctx, tx, userID, sessionID); err != nil {
			return err
		}
		return tx.InsertDistraction(ctx, d)
	})
	if err != nil {
		return domain.Distraction{}, fmt.Errorf("add distraction: %w", err)
	}

	metrics.Distractions.Inc()
	return d, nil
}

// ResolveDistraction marks one of the user's distractions resolved. It works
// on distractions of active and completed sessions alike.
func (s *Service) ResolveDistraction(ctx context.Context, userID, distractionID string) (domain.Distraction, error) {
	var out domain.Distraction
	err := s.db.Update(ctx, func(tx *sqlite.Tx) error {
		d, err := tx.GetDistraction(ctx, distractionID)
		if err != nil {
			return err
		}
		if d == nil || d.UserID != userID {
			return domain.ErrDistractionNotFound
		}
		if d.Resolved {
			return domain.ErrAlreadyInState
		}
		if err := tx.ResolveDistraction(ctx, d.ID); err != nil {
			return err
		}
		d.Resolved = true
		out = *d
		return nil
	})
	if err != nil {
		return domain.Distraction{}, fmt.Errorf("resolve distraction: %w", err)
	}
	return out, nil
}

// Distractions lists the distractions of one of the user's sessions.
func (s *Service) Distractions(ctx context.Context, userID, sessionID string) ([]domain.Distraction, error) {
	var out []domain.Distraction
	err := s.db.View(ctx, func(tx *sqlite.Tx) error {
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil || sess.UserID != userID {
			return domain.ErrSessionNotFound
		}
		out, err = tx.ListDistractions(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list distractions: %w", err)
	}
	return out, nil
}

// Complete finalizes the session and pays its XP in the same transaction.
// Completing twice yields domain.ErrAlreadyCompleted and pays nothing.
func (s *Service) Complete(ctx context.Context, userID, sessionID string, in CompleteInput) (domain.SessionCompletion, error) {
	if in.Rating != 0 && (in.Rating < 1 || in.Rating > 5) {
		return domain.SessionCompletion{}, domain.Invalid("rating", "must be 1-5")
	}
	notes := strings.TrimSpace(in.Notes)
	if len(notes) > maxNotesLen {
		return domain.SessionCompletion{}, domain.Invalid("notes", fmt.Sprintf("longer than %d characters", maxNotesLen))
	}

	now := s.clock.Now()
	var out domain.SessionCompletion
	err := s.db.Update(ctx, func(tx *sqlite.Tx) error {
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil || sess.UserID != userID {
			return domain.ErrSessionNotFound
		}
		if sess.Completed {
			return domain.ErrAlreadyCompleted
		}

		end := in.EndTime
		if end.IsZero() {
			end = now
		}
		if end.Before(sess.StartTime) {
			return domain.Invalid("end_time", "precedes start time")
		}

		if sess.Paused {
			sess.PausedSeconds += pausedFor(sess, end)
		}
		sess.Paused = false
		sess.PausedAt = time.Time{}
		sess.EndTime = end
		sess.Completed = true
		sess.XPEarned = sess.Type.CompletionXP()
		sess.Rating = in.Rating
		sess.Notes = notes

		ok, err := tx.MarkSessionCompleted(ctx, *sess)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyCompleted
		}

		progress, err := engagement.ApplyXP(ctx, tx, userID, sess.XPEarned, domain.XPSessionCompleted)
		if err != nil {
			return err
		}

		actual := sess.ActualMinutes(end)
		out = domain.SessionCompletion{
			Session:         *sess,
			XPEarned:        sess.XPEarned,
			ActualDuration:  actual,
			CompletedOnTime: sess.OnTime(actual),
			PausedMinutes:   int(math.Round(float64(sess.PausedSeconds) / 60)),
			Progress:        progress,
		}
		return nil
	})
	if err != nil {
		return domain.SessionCompletion{}, fmt.Errorf("complete session: %w", err)
	}

	engagement.RecordXP(out.Progress, domain.XPSessionCompleted)
	metrics.SessionsCompleted.WithLabelValues(string(out.Session.Type), fmt.Sprint(out.CompletedOnTime)).Inc()
	metrics.SessionMinutes.WithLabelValues(string(out.Session.Type)).Observe(float64(out.ActualDuration))
	return out, nil
}

// Cancel deletes the user's active session and its distractions. No XP is
// paid and no history remains.
func (s *Service) Cancel(ctx context.Context, userID, sessionID string) error {
	err := s.db.Update(ctx, func(tx *sqlite.Tx) error {
		ok, err := tx.DeleteActiveSession(ctx, userID, sessionID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrSessionNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}

	metrics.SessionsCancelled.Inc()
	log.Printf("[session] user %s cancelled session %s", userID, sessionID)
	return nil
}

// Active returns the user's active session, or nil when there is none.
func (s *Service) Active(ctx context.Context, userID string) (*domain.FocusSession, error) {
	return s.db.ActiveSession(ctx, userID)
}

// History returns the user's sessions, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.FocusSession, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	return s.db.ListSessions(ctx, userID, limit)
}

// activeSession loads a session the user owns that has not completed.
func activeSession(ctx context.Context, tx *sqlite.Tx, userID, sessionID string) (*domain.FocusSession, error) {
	sess, err := tx.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.UserID != userID || sess.Completed {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

func pausedFor(sess *domain.FocusSession, until time.Time) int64 {
	if sess.PausedAt.IsZero() || until.Before(sess.PausedAt) {
		return 0
	}
	return int64(until.Sub(sess.PausedAt) / time.Second)
}

func scoreOrDefault(v int) int {
	if v == 0 {
		return domain.DefaultDistractionScore
	}
	return v
}
