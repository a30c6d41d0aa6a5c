// Package account manages user records: registration, lookup and the active
// flag that decides whether the nightly sweep visits a user.
package account

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/tutu-network/focus/internal/domain"
	"github.com/tutu-network/focus/internal/infra/sqlite"
)

const (
	maxNameLen   = 100
	maxTaskLimit = 50
)

// Service manages user accounts.
type Service struct {
	db    *sqlite.DB
	clock domain.Clock
}

// NewService creates an account service.
func NewService(db *sqlite.DB, clock domain.Clock) *Service {
	return &Service{db: db, clock: clock}
}

// Register creates a user at level 1 with no XP. A dailyLimit of 0 defers to
// the configured default.
func (s *Service) Register(ctx context.Context, name string, dailyLimit int) (domain.User, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLen {
		return domain.User{}, domain.Invalid("name", fmt.Sprintf("must be 1-%d characters", maxNameLen))
	}
	if dailyLimit < 0 || dailyLimit > maxTaskLimit {
		return domain.User{}, domain.Invalid("daily_task_limit", fmt.Sprintf("must be 0-%d", maxTaskLimit))
	}

	u := domain.User{
		ID:             uuid.New().String(),
		Name:           name,
		Level:          1,
		DailyTaskLimit: dailyLimit,
		Active:         true,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.db.InsertUser(ctx, u); err != nil {
		return domain.User{}, fmt.Errorf("register user: %w", err)
	}

	log.Printf("[account] registered user %s (%s)", u.ID, u.Name)
	return u, nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id string) (domain.User, error) {
	u, err := s.db.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if u == nil {
		return domain.User{}, domain.ErrUserNotFound
	}
	return *u, nil
}

// SetActive includes or excludes a user from scheduled reward sweeps.
func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	return s.db.SetUserActive(ctx, id, active)
}

// ListActive returns the IDs of active users.
func (s *Service) ListActive(ctx context.Context) ([]string, error) {
	return s.db.ListActiveUserIDs(ctx)
}
