// Reward types.
// Two reward streams turn sustained activity into bonus XP: consecutive-day
// streak milestones and weekly goal tiers. Each is paid at most once per
// threshold, tracked by a watermark on the user record.

package domain

import "time"

// StreakRewardXP is paid for each streak milestone reached.
const StreakRewardXP int64 = 50

// StreakMilestones are evaluated in ascending order.
var StreakMilestones = []int{3, 7, 14, 30, 60, 100}

// WeeklyTier is one weekly goal level.
type WeeklyTier struct {
	Name     string `json:"name"`
	Tasks    int    `json:"tasks"`
	Sessions int    `json:"sessions"`
	RewardXP int64  `json:"reward_xp"`
}

// WeeklyTiers are evaluated in ascending order.
var WeeklyTiers = []WeeklyTier{
	{Name: "Basic", Tasks: 5, Sessions: 3, RewardXP: 50},
	{Name: "Advanced", Tasks: 10, Sessions: 7, RewardXP: 100},
	{Name: "Expert", Tasks: 15, Sessions: 12, RewardXP: 150},
}

// Met reports whether the given weekly counts satisfy the tier.
func (t WeeklyTier) Met(tasks, sessions int) bool {
	return tasks >= t.Tasks && sessions >= t.Sessions
}

// StreakReward is the outcome of one streak check.
type StreakReward struct {
	Streak       int      `json:"streak"`
	StreakReward int64    `json:"streak_reward"`
	Milestone    int      `json:"milestone,omitempty"`
	Progress     *LevelUp `json:"progress,omitempty"`
}

// WeeklyReward is the outcome of one weekly goal check.
type WeeklyReward struct {
	WeekStart    time.Time `json:"week_start"`
	TasksDone    int       `json:"tasks_done"`
	SessionsDone int       `json:"sessions_done"`
	WeeklyReward int64     `json:"weekly_reward"`
	Tier         string    `json:"tier,omitempty"`
	Progress     *LevelUp  `json:"progress,omitempty"`
}

// RewardCheck combines both streams for one user.
type RewardCheck struct {
	UserID string       `json:"user_id"`
	Streak StreakReward `json:"streak"`
	Weekly WeeklyReward `json:"weekly"`
}

// Progress is a read-only view of a user's level standing.
type Progress struct {
	Level         int     `json:"level"`
	XP            int64   `json:"xp"`
	XPToNextLevel int64   `json:"xp_to_next_level"`
	ProgressPct   float64 `json:"progress_pct"`
}
