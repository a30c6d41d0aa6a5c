package engagement

import (
	"context"
	"fmt"
	"log"

	"github.com/tutu-network/focus/internal/domain"
	"github.com/tutu-network/focus/internal/infra/metrics"
	"github.com/tutu-network/focus/internal/infra/sqlite"
)

// LevelService manages the XP and level system.
// Linear curve: every level spans 100 XP, level = floor(xp/100) + 1.
// Crossing a level boundary pays a one-time 100 XP bonus in the same write.
type LevelService struct {
	db *sqlite.DB
}

// NewLevelService creates a level service.
func NewLevelService(db *sqlite.DB) *LevelService {
	return &LevelService{db: db}
}

// AddXP grants amount XP to a user in its own transaction.
func (l *LevelService) AddXP(ctx context.Context, userID string, amount int64, source domain.XPSource) (domain.LevelUp, error) {
	var result domain.LevelUp
	err := l.db.Update(ctx, func(tx *sqlite.Tx) error {
		var err error
		result, err = ApplyXP(ctx, tx, userID, amount, source)
		return err
	})
	if err != nil {
		return domain.LevelUp{}, err
	}
	RecordXP(result, source)
	return result, nil
}

// ApplyXP grants XP inside the caller's transaction, so the grant commits or
// rolls back together with whatever earned it.
//
// The level-up bonus is applied once and does not cascade: the stored level is
// the one reached before the bonus, even when the bonus itself crosses another
// boundary. The next grant recomputes the level from the stored total.
func ApplyXP(ctx context.Context, tx *sqlite.Tx, userID string, amount int64, source domain.XPSource) (domain.LevelUp, error) {
	if amount <= 0 {
		return domain.LevelUp{}, domain.Invalid("amount", fmt.Sprintf("xp amount must be positive, got %d", amount))
	}

	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return domain.LevelUp{}, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return domain.LevelUp{}, domain.ErrUserNotFound
	}

	oldLevel := user.Level
	total := user.XP + amount
	newLevel := domain.LevelForXP(total)
	gained := amount

	leveledUp := newLevel > oldLevel
	if leveledUp {
		total += domain.LevelUpBonusXP
		gained += domain.LevelUpBonusXP
	}

	if err := tx.SetUserXP(ctx, userID, total, newLevel); err != nil {
		return domain.LevelUp{}, fmt.Errorf("save xp: %w", err)
	}

	if leveledUp {
		log.Printf("[engagement] user %s reached level %d via %s", userID, newLevel, source)
	}

	return domain.LevelUp{
		LeveledUp: leveledUp,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		XPGained:  gained,
		TotalXP:   total,
	}, nil
}

// RecordXP reports a committed grant to the metrics registry.
func RecordXP(result domain.LevelUp, source domain.XPSource) {
	metrics.XPAwarded.WithLabelValues(string(source)).Add(float64(result.XPGained))
	if result.LeveledUp {
		metrics.LevelUps.Inc()
	}
}

// Progress returns the user's level standing.
func (l *LevelService) Progress(ctx context.Context, userID string) (domain.Progress, error) {
	user, err := l.db.GetUser(ctx, userID)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return domain.Progress{}, domain.ErrUserNotFound
	}
	return ProgressFor(*user), nil
}

// ProgressFor derives XP remaining and percentage toward the next level.
func ProgressFor(u domain.User) domain.Progress {
	p := domain.Progress{Level: u.Level, XP: u.XP}

	floor := int64(u.Level-1) * domain.XPPerLevel
	next := int64(u.Level) * domain.XPPerLevel
	p.XPToNextLevel = max(0, next-u.XP)

	pct := float64(u.XP-floor) / float64(domain.XPPerLevel) * 100.0
	p.ProgressPct = min(100.0, max(0, pct))
	return p
}
