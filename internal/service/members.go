package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bookstore/services/library/internal/auth"
	"github.com/bookstore/services/library/internal/db"
	"github.com/bookstore/services/library/internal/repo"
)

// UserStore is the member persistence the service needs.
type UserStore interface {
	ListUsers(ctx context.Context) ([]*db.User, error)
	GetUser(ctx context.Context, id uint) (*db.User, error)
	CreateUser(ctx context.Context, user *db.User) error
	UpdateUser(ctx context.Context, user *db.User) error
	DeleteUser(ctx context.Context, id uint) error
}

// LoanStore lists open issued records.
type LoanStore interface {
	ListOpen(ctx context.Context, userID uint) ([]*db.IssuedRecord, error)
}

// NewUser is one item of an add batch.
type NewUser struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UserUpdate replaces every editable field of a user.
type UserUpdate struct {
	ID       uint   `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// MemberService manages users and their loans.
type MemberService struct {
	users UserStore
	loans LoanStore
	log   *zap.Logger
}

// NewMemberService creates a member service
func NewMemberService(users UserStore, loans LoanStore, log *zap.Logger) *MemberService {
	return &MemberService{users: users, loans: loans, log: log}
}

// Add registers the batch in order after validating all of it. Passwords are
// stored as bcrypt hashes.
func (s *MemberService) Add(ctx context.Context, items []NewUser) ([]*db.User, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty batch", repo.ErrInvalidInput)
	}
	for i, item := range items {
		if err := validateUser(item.Email, item.Password, item.Role); err != nil {
			return nil, &repo.ItemError{Index: i, Err: err}
		}
	}

	created := make([]*db.User, 0, len(items))
	for i, item := range items {
		hash, err := auth.HashPassword(item.Password)
		if err != nil {
			return created, &repo.ItemError{Index: i, Err: err}
		}

		user := &db.User{
			Email:    strings.TrimSpace(item.Email),
			Password: hash,
			Role:     item.Role,
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return created, &repo.ItemError{Index: i, Err: err}
		}
		created = append(created, user)
	}
	return created, nil
}

// Update overwrites email, password and role.
func (s *MemberService) Update(ctx context.Context, update UserUpdate) error {
	if update.ID == 0 {
		return fmt.Errorf("%w: id is required", repo.ErrInvalidInput)
	}
	if err := validateUser(update.Email, update.Password, update.Role); err != nil {
		return err
	}

	hash, err := auth.HashPassword(update.Password)
	if err != nil {
		return err
	}

	return s.users.UpdateUser(ctx, &db.User{
		ID:       update.ID,
		Email:    strings.TrimSpace(update.Email),
		Password: hash,
		Role:     update.Role,
	})
}

// Delete removes a user with no open loans.
func (s *MemberService) Delete(ctx context.Context, id uint) error {
	if id == 0 {
		return fmt.Errorf("%w: id is required", repo.ErrInvalidInput)
	}
	return s.users.DeleteUser(ctx, id)
}

// List returns every user.
func (s *MemberService) List(ctx context.Context) ([]*db.User, error) {
	return s.users.ListUsers(ctx)
}

// Loans returns open issued records, for a single user when userID is set.
func (s *MemberService) Loans(ctx context.Context, userID uint) ([]*db.IssuedRecord, error) {
	if userID != 0 {
		if _, err := s.users.GetUser(ctx, userID); err != nil {
			return nil, err
		}
	}
	return s.loans.ListOpen(ctx, userID)
}

func validateUser(email, password, role string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: a valid email is required", repo.ErrInvalidInput)
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", repo.ErrInvalidInput)
	}
	if role != db.RoleAdmin && role != db.RoleMember {
		return fmt.Errorf("%w: role must be %q or %q", repo.ErrInvalidInput, db.RoleAdmin, db.RoleMember)
	}
	return nil
}
