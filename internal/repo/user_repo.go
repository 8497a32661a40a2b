package repo

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bookstore/services/library/internal/db"
)

// UserRepository handles library member accounts
type UserRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(database *db.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:  database,
		log: logger,
	}
}

// ListUsers returns every user ordered by id
func (r *UserRepository) ListUsers(ctx context.Context) ([]*db.User, error) {
	var users []*db.User
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		r.log.Error("Failed to list users", zap.Error(err))
		return nil, err
	}
	return users, nil
}

// GetUser retrieves a user by id
func (r *UserRepository) GetUser(ctx context.Context, id uint) (*db.User, error) {
	var user db.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		r.log.Error("Failed to get user", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail looks a user up by exact, case-sensitive email
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	var user db.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		r.log.Error("Failed to get user by email", zap.Error(err))
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a user. The password must already be hashed.
func (r *UserRepository) CreateUser(ctx context.Context, user *db.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		r.log.Error("Failed to create user", zap.String("email", user.Email), zap.Error(err))
		return err
	}

	r.log.Info("User created", zap.Uint("id", user.ID), zap.String("role", user.Role))
	return nil
}

// UpdateUser overwrites email, password hash and role of an existing user
func (r *UserRepository) UpdateUser(ctx context.Context, user *db.User) error {
	result := r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"email":    user.Email,
		"password": user.Password,
		"role":     user.Role,
	})
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return ErrDuplicateEmail
		}
		r.log.Error("Failed to update user", zap.Uint("id", user.ID), zap.Error(result.Error))
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	r.log.Info("User updated", zap.Uint("id", user.ID), zap.String("role", user.Role))
	return nil
}

// DeleteUser removes a user without open issued records
func (r *UserRepository) DeleteUser(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user db.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		var open int64
		if err := tx.Model(&db.IssuedRecord{}).Where("user_id = ?", id).Count(&open).Error; err != nil {
			return fmt.Errorf("count open issues: %w", err)
		}
		if open > 0 {
			return ErrUserHasLoans
		}

		if err := tx.Delete(&db.User{}, id).Error; err != nil {
			if isForeignKeyViolation(err) {
				return ErrUserHasLoans
			}
			return err
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) && !errors.Is(err, ErrUserHasLoans) {
			r.log.Error("Failed to delete user", zap.Uint("id", id), zap.Error(err))
		}
		return err
	}

	r.log.Info("User deleted", zap.Uint("id", id))
	return nil
}
