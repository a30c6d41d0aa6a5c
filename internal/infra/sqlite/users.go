package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tutu-network/focus/internal/domain"
	"github.com/tutu-network/focus/internal/timewindow"
)

// ─── User Repository ────────────────────────────────────────────────────────

const userColumns = `id, name, xp, level, daily_task_limit, active,
	last_streak_milestone, last_weekly_tier, weekly_reward_week, created_at`

// InsertUser creates a user record.
func (c conn) InsertUser(ctx context.Context, u domain.User) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.XP, u.Level, u.DailyTaskLimit, u.Active,
		u.LastStreakRewardMilestone, u.LastWeeklyRewardTier, dayString(u.WeeklyRewardWeek),
		u.CreatedAt.Unix(),
	)
	if err != nil {
		return storageErr("insert user", err)
	}
	return nil
}

// GetUser retrieves a user by ID. Returns nil, nil when absent.
func (c conn) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// ListActiveUserIDs returns the IDs of all active users, oldest first.
func (c conn) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT id FROM users WHERE active = 1 ORDER BY created_at, id`)
	if err != nil {
		return nil, storageErr("list active users", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan user id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list active users", err)
	}
	return ids, nil
}

// SetUserXP stores a new XP total and level.
func (c conn) SetUserXP(ctx context.Context, id string, xp int64, level int) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE users SET xp = ?, level = ? WHERE id = ?`, xp, level, id)
	if err != nil {
		return storageErr("update xp", err)
	}
	ok, err := affected("update xp", res)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrUserNotFound
	}
	return nil
}

// SetStreakWatermark records the highest streak milestone paid.
func (c conn) SetStreakWatermark(ctx context.Context, id string, milestone int) error {
	_, err := c.q.ExecContext(ctx,
		`UPDATE users SET last_streak_milestone = ? WHERE id = ?`, milestone, id)
	if err != nil {
		return storageErr("update streak watermark", err)
	}
	return nil
}

// SetWeeklyWatermark records the highest weekly tier reward paid in week.
func (c conn) SetWeeklyWatermark(ctx context.Context, id string, week time.Time, tier int64) error {
	_, err := c.q.ExecContext(ctx,
		`UPDATE users SET last_weekly_tier = ?, weekly_reward_week = ? WHERE id = ?`,
		tier, dayString(week), id)
	if err != nil {
		return storageErr("update weekly watermark", err)
	}
	return nil
}

// SetUserActive toggles whether the sweep visits this user.
func (c conn) SetUserActive(ctx context.Context, id string, active bool) error {
	res, err := c.q.ExecContext(ctx, `UPDATE users SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return storageErr("update user active", err)
	}
	ok, err := affected("update user active", res)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(s scanner) (*domain.User, error) {
	var u domain.User
	var week string
	var createdAt int64

	err := s.Scan(&u.ID, &u.Name, &u.XP, &u.Level, &u.DailyTaskLimit, &u.Active,
		&u.LastStreakRewardMilestone, &u.LastWeeklyRewardTier, &week, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, storageErr("scan user", err)
	}

	u.CreatedAt = fromUnix(createdAt)
	if week != "" {
		u.WeeklyRewardWeek, err = timewindow.ParseDay(week)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		}
	}
	return &u, nil
}

// dayString renders a day key, or "" for the zero time.
func dayString(day time.Time) string {
	if day.IsZero() {
		return ""
	}
	return timewindow.FormatDay(day)
}
