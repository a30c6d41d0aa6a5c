package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tutu-network/focus/internal/domain"
	"github.com/tutu-network/focus/internal/timewindow"
)

// ─── Focus Session Repository ───────────────────────────────────────────────

const sessionColumns = `id, user_id, session_type, duration, start_time, session_date,
	end_time, completed, paused, paused_at, paused_seconds, xp_earned, rating, notes`

// InsertSession creates a session. A second uncompleted session for the same
// user violates idx_sessions_one_active and yields domain.ErrActiveSessionExists.
func (c conn) InsertSession(ctx context.Context, s domain.FocusSession) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO focus_sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, string(s.Type), s.Duration, s.StartTime.Unix(),
		timewindow.FormatDay(s.SessionDate), nullableUnix(s.EndTime), s.Completed,
		s.Paused, nullableUnix(s.PausedAt), s.PausedSeconds, s.XPEarned,
		nullableRating(s.Rating), s.Notes,
	)
	if isUniqueViolation(err) {
		return domain.ErrActiveSessionExists
	}
	if err != nil {
		return storageErr("insert session", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns nil, nil when absent.
func (c conn) GetSession(ctx context.Context, id string) (*domain.FocusSession, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM focus_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ActiveSession returns the user's uncompleted session, or nil.
func (c conn) ActiveSession(ctx context.Context, userID string) (*domain.FocusSession, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM focus_sessions WHERE user_id = ? AND completed = 0`, userID)
	return scanSession(row)
}

// ListSessions returns a user's sessions, newest first.
func (c conn) ListSessions(ctx context.Context, userID string, limit int) ([]domain.FocusSession, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM focus_sessions
		 WHERE user_id = ? ORDER BY start_time DESC, id LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	defer rows.Close()

	var sessions []domain.FocusSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list sessions", err)
	}
	return sessions, nil
}

// SetSessionPause stores pause bookkeeping on an uncompleted session.
// Returns false when the session is completed or absent.
func (c conn) SetSessionPause(ctx context.Context, id string, paused bool, pausedAt time.Time, pausedSeconds int64) (bool, error) {
	res, err := c.q.ExecContext(ctx,
		`UPDATE focus_sessions SET paused = ?, paused_at = ?, paused_seconds = ?
		 WHERE id = ? AND completed = 0`,
		paused, nullableUnix(pausedAt), pausedSeconds, id,
	)
	if err != nil {
		return false, storageErr("pause session", err)
	}
	return affected("pause session", res)
}

// MarkSessionCompleted finalizes an uncompleted session. Returns false when
// another caller completed it first.
func (c conn) MarkSessionCompleted(ctx context.Context, s domain.FocusSession) (bool, error) {
	res, err := c.q.ExecContext(ctx,
		`UPDATE focus_sessions
		 SET completed = 1, end_time = ?, paused = 0, paused_at = NULL, paused_seconds = ?,
		     xp_earned = ?, rating = ?, notes = ?
		 WHERE id = ? AND completed = 0`,
		s.EndTime.Unix(), s.PausedSeconds, s.XPEarned, nullableRating(s.Rating), s.Notes, s.ID,
	)
	if err != nil {
		return false, storageErr("complete session", err)
	}
	return affected("complete session", res)
}

// DeleteActiveSession removes a user's uncompleted session together with its
// distractions. Returns false when no such session exists.
func (c conn) DeleteActiveSession(ctx context.Context, userID, id string) (bool, error) {
	if _, err := c.q.ExecContext(ctx,
		`DELETE FROM distractions WHERE session_id IN
		 (SELECT id FROM focus_sessions WHERE id = ? AND user_id = ? AND completed = 0)`,
		id, userID,
	); err != nil {
		return false, storageErr("delete distractions", err)
	}

	res, err := c.q.ExecContext(ctx,
		`DELETE FROM focus_sessions WHERE id = ? AND user_id = ? AND completed = 0`, id, userID)
	if err != nil {
		return false, storageErr("delete session", err)
	}
	return affected("delete session", res)
}

// CountCompletedSessions counts a user's sessions that ended in [from, to).
func (c conn) CountCompletedSessions(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var n int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM focus_sessions
		 WHERE user_id = ? AND completed = 1 AND end_time >= ? AND end_time < ?`,
		userID, from.Unix(), to.Unix(),
	).Scan(&n)
	if err != nil {
		return 0, storageErr("count completed sessions", err)
	}
	return n, nil
}

func scanSession(s scanner) (*domain.FocusSession, error) {
	var fs domain.FocusSession
	var sessionType, day string
	var startTime int64
	var endTime, pausedAt, rating sql.NullInt64

	err := s.Scan(&fs.ID, &fs.UserID, &sessionType, &fs.Duration, &startTime, &day,
		&endTime, &fs.Completed, &fs.Paused, &pausedAt, &fs.PausedSeconds,
		&fs.XPEarned, &rating, &fs.Notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("scan session", err)
	}

	fs.Type = domain.SessionType(sessionType)
	fs.StartTime = fromUnix(startTime)
	fs.SessionDate, err = timewindow.ParseDay(day)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", fs.ID, err)
	}
	fs.EndTime = fromNullableUnix(endTime)
	fs.PausedAt = fromNullableUnix(pausedAt)
	if rating.Valid {
		fs.Rating = int(rating.Int64)
	}
	return &fs, nil
}

func nullableRating(r int) sql.NullInt64 {
	if r == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(r), Valid: true}
}

// ─── Distraction Repository ─────────────────────────────────────────────────

const distractionColumns = `id, user_id, session_id, type, note, duration_seconds,
	severity, impact, resolved, created_at`

// InsertDistraction appends a distraction to a session.
func (c conn) InsertDistraction(ctx context.Context, d domain.Distraction) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO distractions (`+distractionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.SessionID, d.Type, d.Note, d.DurationSeconds,
		d.Severity, d.Impact, d.Resolved, d.CreatedAt.Unix(),
	)
	if err != nil {
		return storageErr("insert distraction", err)
	}
	return nil
}

// GetDistraction retrieves a distraction by ID. Returns nil, nil when absent.
func (c conn) GetDistraction(ctx context.Context, id string) (*domain.Distraction, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+distractionColumns+` FROM distractions WHERE id = ?`, id)
	return scanDistraction(row)
}

// ListDistractions returns a session's distractions in logging order.
func (c conn) ListDistractions(ctx context.Context, sessionID string) ([]domain.Distraction, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+distractionColumns+` FROM distractions
		 WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, storageErr("list distractions", err)
	}
	defer rows.Close()

	var out []domain.Distraction
	for rows.Next() {
		d, err := scanDistraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list distractions", err)
	}
	return out, nil
}

// ResolveDistraction marks a distraction resolved.
func (c conn) ResolveDistraction(ctx context.Context, id string) error {
	_, err := c.q.ExecContext(ctx, `UPDATE distractions SET resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return storageErr("resolve distraction", err)
	}
	return nil
}

func scanDistraction(s scanner) (*domain.Distraction, error) {
	var d domain.Distraction
	var createdAt int64

	err := s.Scan(&d.ID, &d.UserID, &d.SessionID, &d.Type, &d.Note, &d.DurationSeconds,
		&d.Severity, &d.Impact, &d.Resolved, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("scan distraction", err)
	}
	d.CreatedAt = fromUnix(createdAt)
	return &d, nil
}
