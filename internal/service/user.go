package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emberworks/hongbao/internal/domain"
)

// UserStore persists user profiles.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	UpsertUser(ctx context.Context, id int64, firstName, username string, isAdmin bool) (*domain.User, bool, error)
}

type UserService struct {
	store           UserStore
	ledger          Ledger
	startingBalance int64
}

func NewUserService(store UserStore, ledger Ledger, startingBalance int64) *UserService {
	return &UserService{store: store, ledger: ledger, startingBalance: startingBalance}
}

// FindOrCreate registers the user on first contact and grants the signup
// bonus through the ledger so it shows up in their transaction history.
func (s *UserService) FindOrCreate(ctx context.Context, id int64, firstName, username string, isAdmin bool) (*domain.User, error) {
	user, created, err := s.store.UpsertUser(ctx, id, firstName, username, isAdmin)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	if created && s.startingBalance > 0 {
		balance, err := s.ledger.Credit(ctx, id, s.startingBalance,
			domain.EventSignupBonus, "新用户注册奖励")
		if err != nil {
			slog.Error("grant signup bonus", "user_id", id, "error", err)
			return user, nil
		}
		user.Balance = balance
		slog.Info("user registered", "user_id", id, "bonus", s.startingBalance)
	}
	return user, nil
}

// ResolveUsername maps an @username mention to a known user.
func (s *UserService) ResolveUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.store.GetUserByUsername(ctx, username)
}
