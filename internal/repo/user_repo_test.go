package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookstore/services/library/internal/db"
	"github.com/bookstore/services/library/internal/db/dbtest"
	"github.com/bookstore/services/library/pkg/logger"
)

func setupUsers(t *testing.T) *UserRepository {
	database := dbtest.Open(t)
	return NewUserRepository(database, logger.NewLogger("test", "info"))
}

func TestCreateAndGetUser(t *testing.T) {
	repo := setupUsers(t)
	ctx := context.Background()

	user := &db.User{Email: "ada@example.com", Password: "hash", Role: db.RoleMember}
	require.NoError(t, repo.CreateUser(ctx, user))
	assert.NotZero(t, user.ID)

	byID, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", byID.Email)

	byEmail, err := repo.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	// Email match is exact
	_, err = repo.GetUserByEmail(ctx, "ADA@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = repo.GetUser(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo := setupUsers(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateUser(ctx, &db.User{Email: "dup@example.com", Password: "h", Role: db.RoleMember}))
	err := repo.CreateUser(ctx, &db.User{Email: "dup@example.com", Password: "h", Role: db.RoleAdmin})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestUpdateUser(t *testing.T) {
	repo := setupUsers(t)
	ctx := context.Background()

	user := &db.User{Email: "old@example.com", Password: "h1", Role: db.RoleMember}
	require.NoError(t, repo.CreateUser(ctx, user))
	other := &db.User{Email: "taken@example.com", Password: "h", Role: db.RoleMember}
	require.NoError(t, repo.CreateUser(ctx, other))

	require.NoError(t, repo.UpdateUser(ctx, &db.User{ID: user.ID, Email: "new@example.com", Password: "h2", Role: db.RoleAdmin}))

	updated, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", updated.Email)
	assert.Equal(t, "h2", updated.Password)
	assert.Equal(t, db.RoleAdmin, updated.Role)

	err = repo.UpdateUser(ctx, &db.User{ID: user.ID, Email: "taken@example.com", Password: "h", Role: db.RoleAdmin})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	err = repo.UpdateUser(ctx, &db.User{ID: 404, Email: "x@example.com", Password: "h", Role: db.RoleAdmin})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestListAndDeleteUsers(t *testing.T) {
	repo := setupUsers(t)
	ctx := context.Background()

	a := &db.User{Email: "a@example.com", Password: "h", Role: db.RoleAdmin}
	b := &db.User{Email: "b@example.com", Password: "h", Role: db.RoleMember}
	require.NoError(t, repo.CreateUser(ctx, a))
	require.NoError(t, repo.CreateUser(ctx, b))

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	require.NoError(t, repo.DeleteUser(ctx, a.ID))
	assert.ErrorIs(t, repo.DeleteUser(ctx, a.ID), ErrUserNotFound)

	users, err = repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "b@example.com", users[0].Email)
}
