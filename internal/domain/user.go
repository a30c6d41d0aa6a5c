// Package domain holds the core types, rules and errors of focus.
// It has no infrastructure dependencies.
package domain

import "time"

// XPPerLevel is the flat XP span of every level.
const XPPerLevel int64 = 100

// LevelUpBonusXP is granted once per AddXP call that crosses a level boundary.
const LevelUpBonusXP int64 = 100

// User owns XP, level and the two reward watermarks.
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	XP             int64     `json:"xp"`
	Level          int       `json:"level"`
	DailyTaskLimit int       `json:"daily_task_limit"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`

	// LastStreakRewardMilestone is the highest streak milestone already paid.
	LastStreakRewardMilestone int `json:"last_streak_reward_milestone"`
	// LastWeeklyRewardTier is the highest weekly reward (in XP) already paid
	// during WeeklyRewardWeek.
	LastWeeklyRewardTier int64     `json:"last_weekly_reward_tier"`
	WeeklyRewardWeek     time.Time `json:"weekly_reward_week,omitempty"`
}

// LevelForXP returns floor(xp/100) + 1.
func LevelForXP(xp int64) int {
	if xp < 0 {
		return 1
	}
	return int(xp/XPPerLevel) + 1
}

// XPSource categorizes how XP was earned.
type XPSource string

const (
	XPTaskCompleted    XPSource = "task_completed"
	XPSessionCompleted XPSource = "session_completed"
	XPStreakReward     XPSource = "streak_reward"
	XPWeeklyReward     XPSource = "weekly_reward"
	XPManual           XPSource = "manual"
)

// LevelUp is the outcome of a single AddXP call.
type LevelUp struct {
	LeveledUp bool  `json:"leveled_up"`
	OldLevel  int   `json:"old_level"`
	NewLevel  int   `json:"new_level"`
	XPGained  int64 `json:"xp_gained"`
	TotalXP   int64 `json:"total_xp"`
}
