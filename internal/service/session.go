package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/bookstore/services/library/internal/auth"
	"github.com/bookstore/services/library/internal/db"
	"github.com/bookstore/services/library/internal/repo"
)

// ErrInvalidLogin covers both an unknown email and a wrong password.
var ErrInvalidLogin = errors.New("invalid email or password")

// UserLookup finds a user by exact email.
type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*db.User, error)
}

// SessionService exchanges credentials for tokens.
type SessionService struct {
	users  UserLookup
	tokens *auth.TokenService
	log    *zap.Logger
}

// NewSessionService creates a session service
func NewSessionService(users UserLookup, tokens *auth.TokenService, log *zap.Logger) *SessionService {
	return &SessionService{users: users, tokens: tokens, log: log}
}

// Login returns a token carrying the user's role.
func (s *SessionService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			s.log.Info("Login rejected", zap.String("reason", "unknown email"))
			return "", ErrInvalidLogin
		}
		return "", err
	}

	if !auth.CheckPassword(user.Password, password) {
		s.log.Info("Login rejected", zap.String("reason", "wrong password"), zap.Uint("user_id", user.ID))
		return "", ErrInvalidLogin
	}

	token, err := s.tokens.Issue(user.Role)
	if err != nil {
		return "", err
	}

	s.log.Info("Login succeeded", zap.Uint("user_id", user.ID), zap.String("role", user.Role))
	return token, nil
}
