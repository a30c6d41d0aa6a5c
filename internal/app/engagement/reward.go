// Package engagement implements the focus engagement engine:
// XP and levels, streak milestones, and weekly goal tiers.
package engagement

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tutu-network/focus/internal/domain"
	"github.com/tutu-network/focus/internal/infra/metrics"
	"github.com/tutu-network/focus/internal/infra/sqlite"
	"github.com/tutu-network/focus/internal/timewindow"
)

// streakLookbackDays bounds the completion history read for a streak.
// Comfortably above the largest milestone.
const streakLookbackDays = 400

// RewardService pays streak and weekly-goal rewards.
// Each stream keeps a watermark on the user row; the watermark is read,
// compared, and advanced in the same transaction as the XP grant, so a
// milestone is paid at most once no matter how often the check runs.
type RewardService struct {
	db    *sqlite.DB
	clock domain.Clock
	loc   *time.Location
}

// NewRewardService creates a reward service evaluating days in loc.
func NewRewardService(db *sqlite.DB, clock domain.Clock, loc *time.Location) *RewardService {
	return &RewardService{db: db, clock: clock, loc: loc}
}

// CheckStreakRewards evaluates the streak stream as of asOf.
func (r *RewardService) CheckStreakRewards(ctx context.Context, userID string, asOf time.Time) (domain.StreakReward, error) {
	var out domain.StreakReward
	err := r.db.Update(ctx, func(tx *sqlite.Tx) error {
		user, err := r.loadUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		out, err = r.checkStreak(ctx, tx, user, asOf)
		return err
	})
	if err != nil {
		return domain.StreakReward{}, err
	}
	r.record(userID, &out, nil)
	return out, nil
}

// CheckWeeklyGoals evaluates the weekly stream for the week containing asOf.
func (r *RewardService) CheckWeeklyGoals(ctx context.Context, userID string, asOf time.Time) (domain.WeeklyReward, error) {
	var out domain.WeeklyReward
	err := r.db.Update(ctx, func(tx *sqlite.Tx) error {
		user, err := r.loadUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		out, err = r.checkWeekly(ctx, tx, user, asOf)
		return err
	})
	if err != nil {
		return domain.WeeklyReward{}, err
	}
	r.record(userID, nil, &out)
	return out, nil
}

// CheckAll runs both streams for one user in a single transaction.
func (r *RewardService) CheckAll(ctx context.Context, userID string, asOf time.Time) (domain.RewardCheck, error) {
	out := domain.RewardCheck{UserID: userID}
	err := r.db.Update(ctx, func(tx *sqlite.Tx) error {
		user, err := r.loadUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if out.Streak, err = r.checkStreak(ctx, tx, user, asOf); err != nil {
			return fmt.Errorf("streak: %w", err)
		}
		// The streak grant may have changed xp/level; reload before the next grant.
		if user, err = r.loadUser(ctx, tx, userID); err != nil {
			return err
		}
		if out.Weekly, err = r.checkWeekly(ctx, tx, user, asOf); err != nil {
			return fmt.Errorf("weekly: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.RewardCheck{UserID: userID}, err
	}
	r.record(userID, &out.Streak, &out.Weekly)
	return out, nil
}

// CheckNow runs both streams as of the current clock.
func (r *RewardService) CheckNow(ctx context.Context, userID string) (domain.RewardCheck, error) {
	return r.CheckAll(ctx, userID, r.clock.Now())
}

func (r *RewardService) loadUser(ctx context.Context, tx *sqlite.Tx, userID string) (*domain.User, error) {
	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *RewardService) checkStreak(ctx context.Context, tx *sqlite.Tx, user *domain.User, asOf time.Time) (domain.StreakReward, error) {
	today := timewindow.Day(asOf, r.loc)
	from, _ := timewindow.DayBounds(today.AddDate(0, 0, -streakLookbackDays), r.loc)
	_, to := timewindow.DayBounds(today, r.loc)

	times, err := tx.CompletedTaskTimes(ctx, user.ID, from, to)
	if err != nil {
		return domain.StreakReward{}, fmt.Errorf("load completions: %w", err)
	}
	days := make([]time.Time, len(times))
	for i, ts := range times {
		days[i] = timewindow.Day(ts, r.loc)
	}

	out := domain.StreakReward{Streak: timewindow.Streak(days, today)}
	milestone, ok := NextStreakMilestone(out.Streak, user.LastStreakRewardMilestone)
	if !ok {
		return out, nil
	}

	progress, err := ApplyXP(ctx, tx, user.ID, domain.StreakRewardXP, domain.XPStreakReward)
	if err != nil {
		return domain.StreakReward{}, err
	}
	if err := tx.SetStreakWatermark(ctx, user.ID, milestone); err != nil {
		return domain.StreakReward{}, err
	}

	out.StreakReward = domain.StreakRewardXP
	out.Milestone = milestone
	out.Progress = &progress
	return out, nil
}

func (r *RewardService) checkWeekly(ctx context.Context, tx *sqlite.Tx, user *domain.User, asOf time.Time) (domain.WeeklyReward, error) {
	week := timewindow.WeekStart(asOf, r.loc)
	from, to := timewindow.WeekBounds(asOf, r.loc)

	out := domain.WeeklyReward{WeekStart: week}
	var err error
	if out.TasksDone, err = tx.CountCompletedTasks(ctx, user.ID, from, to); err != nil {
		return domain.WeeklyReward{}, fmt.Errorf("count tasks: %w", err)
	}
	if out.SessionsDone, err = tx.CountCompletedSessions(ctx, user.ID, from, to); err != nil {
		return domain.WeeklyReward{}, fmt.Errorf("count sessions: %w", err)
	}

	// The watermark only speaks for the week it was written in.
	watermark := user.LastWeeklyRewardTier
	if !user.WeeklyRewardWeek.Equal(week) {
		watermark = 0
	}

	tier, ok := NextWeeklyTier(out.TasksDone, out.SessionsDone, watermark)
	if !ok {
		return out, nil
	}

	progress, err := ApplyXP(ctx, tx, user.ID, tier.RewardXP, domain.XPWeeklyReward)
	if err != nil {
		return domain.WeeklyReward{}, err
	}
	if err := tx.SetWeeklyWatermark(ctx, user.ID, week, tier.RewardXP); err != nil {
		return domain.WeeklyReward{}, err
	}

	out.WeeklyReward = tier.RewardXP
	out.Tier = tier.Name
	out.Progress = &progress
	return out, nil
}

// record emits metrics and logs for committed payouts.
func (r *RewardService) record(userID string, streak *domain.StreakReward, weekly *domain.WeeklyReward) {
	if streak != nil && streak.Progress != nil {
		RecordXP(*streak.Progress, domain.XPStreakReward)
		metrics.RewardsPaid.WithLabelValues("streak").Inc()
		log.Printf("[rewards] user %s: %d-day streak milestone paid (+%d XP)",
			userID, streak.Milestone, streak.StreakReward)
	}
	if weekly != nil && weekly.Progress != nil {
		RecordXP(*weekly.Progress, domain.XPWeeklyReward)
		metrics.RewardsPaid.WithLabelValues("weekly").Inc()
		log.Printf("[rewards] user %s: weekly tier %s paid (+%d XP)",
			userID, weekly.Tier, weekly.WeeklyReward)
	}
}

// NextStreakMilestone returns the lowest milestone reached by streak that
// lies above the watermark.
func NextStreakMilestone(streak, watermark int) (int, bool) {
	for _, m := range domain.StreakMilestones {
		if streak >= m && watermark < m {
			return m, true
		}
	}
	return 0, false
}

// NextWeeklyTier returns the first tier met by the counts whose reward
// exceeds the watermark.
func NextWeeklyTier(tasks, sessions int, watermark int64) (domain.WeeklyTier, bool) {
	for _, t := range domain.WeeklyTiers {
		if t.Met(tasks, sessions) && t.RewardXP > watermark {
			return t, true
		}
	}
	return domain.WeeklyTier{}, false
}
