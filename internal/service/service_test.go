package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookstore/services/library/internal/auth"
	"github.com/bookstore/services/library/internal/db"
	"github.com/bookstore/services/library/internal/db/dbtest"
	"github.com/bookstore/services/library/internal/events"
	"github.com/bookstore/services/library/internal/inventory"
	"github.com/bookstore/services/library/internal/repo"
)

// MockPublisher records catalog events
type MockPublisher struct {
	events.NopPublisher

	mu     sync.Mutex
	events []string
}

func (m *MockPublisher) PublishBookCreated(_ context.Context, _ uint, title, _ string, _ int) error {
	m.record("created:" + title)
	return nil
}

func (m *MockPublisher) PublishBookUpdated(_ context.Context, _ uint, title, _ string, _ int) error {
	m.record("updated:" + title)
	return nil
}

func (m *MockPublisher) PublishBookDeleted(context.Context, uint) error {
	m.record("deleted")
	return nil
}

func (m *MockPublisher) record(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

type services struct {
	catalog    *CatalogService
	members    *MemberService
	sessions   *SessionService
	engine     *inventory.Engine
	dispatcher *events.Dispatcher
	publisher  *MockPublisher
	tokens     *auth.TokenService
}

func setupServices(t *testing.T) *services {
	database := dbtest.Open(t)
	log := zap.NewNop()

	books := repo.NewCatalogRepository(database, log)
	users := repo.NewUserRepository(database, log)
	issues := repo.NewIssueRepository(database, log)

	s := &services{
		dispatcher: events.NewDispatcher(log),
		publisher:  &MockPublisher{},
		tokens:     auth.NewTokenService([]byte("service-secret")),
	}
	s.catalog = NewCatalogService(books, s.publisher, s.dispatcher, log)
	s.members = NewMemberService(users, issues, log)
	s.sessions = NewSessionService(users, s.tokens, log)
	s.engine = inventory.NewEngine(issues, s.publisher, s.dispatcher, nil, log)
	return s
}

func TestCatalogAddValidatesWholeBatchFirst(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	_, err := s.catalog.Add(ctx, []NewBook{
		{Title: "Dune", Author: "Herbert", Quantity: 2},
		{Title: "Emma", Author: "Austen", Quantity: 0},
	})

	var itemErr *repo.ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, 1, itemErr.Index)
	assert.ErrorIs(t, err, repo.ErrInvalidQuantity)

	books, err := s.catalog.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)

	_, err = s.catalog.Add(ctx, []NewBook{{Title: " ", Author: "Nobody", Quantity: 1}})
	assert.ErrorIs(t, err, repo.ErrInvalidInput)
}

func TestCatalogAddDuplicateKeepsEarlierInserts(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	created, err := s.catalog.Add(ctx, []NewBook{
		{Title: "Dune", Author: "Herbert", Quantity: 2},
		{Title: "Dune", Author: "Herbert", Quantity: 1},
	})
	assert.ErrorIs(t, err, repo.ErrDuplicateBook)
	require.Len(t, created, 1)

	books, err := s.catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, 2, books[0].Quantity)

	s.dispatcher.Wait()
	assert.Equal(t, []string{"created:Dune"}, s.publisher.events)
}

func TestCatalogUpdateAndDelete(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	created, err := s.catalog.Add(ctx, []NewBook{{Title: "Dune", Author: "Herbert", Quantity: 2}})
	require.NoError(t, err)
	id := created[0].ID

	assert.ErrorIs(t, s.catalog.Update(ctx, BookUpdate{ID: id, Title: "Dune", Author: "Herbert", Quantity: 0}), repo.ErrInvalidQuantity)
	assert.ErrorIs(t, s.catalog.Update(ctx, BookUpdate{ID: 999, Title: "X", Author: "Y", Quantity: 1}), repo.ErrBookNotFound)
	require.NoError(t, s.catalog.Update(ctx, BookUpdate{ID: id, Title: "Dune Messiah", Author: "Herbert", Quantity: 4}))

	found, err := s.catalog.Search(ctx, "  messiah ")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 4, found[0].Quantity)

	assert.ErrorIs(t, s.catalog.Delete(ctx, 0), repo.ErrInvalidInput)
	require.NoError(t, s.catalog.Delete(ctx, id))
	assert.ErrorIs(t, s.catalog.Delete(ctx, id), repo.ErrBookNotFound)

	s.dispatcher.Wait()
	assert.ElementsMatch(t, []string{"created:Dune", "updated:Dune Messiah", "deleted"}, s.publisher.events)
}

func TestMemberAddHashesPasswords(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	created, err := s.members.Add(ctx, []NewUser{{Email: "ann@example.com", Password: "secret", Role: db.RoleMember}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.NotEqual(t, "secret", created[0].Password)
	assert.True(t, auth.CheckPassword(created[0].Password, "secret"))
}

func TestMemberAddValidation(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	tests := []struct {
		name string
		user NewUser
	}{
		{name: "missing email", user: NewUser{Password: "p", Role: db.RoleMember}},
		{name: "malformed email", user: NewUser{Email: "ann", Password: "p", Role: db.RoleMember}},
		{name: "missing password", user: NewUser{Email: "ann@example.com", Role: db.RoleMember}},
		{name: "unknown role", user: NewUser{Email: "ann@example.com", Password: "p", Role: "librarian"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.members.Add(ctx, []NewUser{tt.user})
			assert.ErrorIs(t, err, repo.ErrInvalidInput)
		})
	}

	_, err := s.members.Add(ctx, nil)
	assert.ErrorIs(t, err, repo.ErrInvalidInput)
}

func TestMemberAddDuplicateEmail(t *testing.T) {
	s := setupServices(t)

	created, err := s.members.Add(context.Background(), []NewUser{
		{Email: "ann@example.com", Password: "p", Role: db.RoleMember},
		{Email: "ann@example.com", Password: "q", Role: db.RoleAdmin},
	})

	var itemErr *repo.ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, 1, itemErr.Index)
	assert.ErrorIs(t, err, repo.ErrDuplicateEmail)
	assert.Len(t, created, 1)
}

func TestMemberUpdateDeleteAndLoans(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	users, err := s.members.Add(ctx, []NewUser{{Email: "ann@example.com", Password: "p", Role: db.RoleMember}})
	require.NoError(t, err)
	user := users[0]

	books, err := s.catalog.Add(ctx, []NewBook{{Title: "Dune", Author: "Herbert", Quantity: 3}})
	require.NoError(t, err)

	issued, err := s.engine.Issue(ctx, []inventory.IssueRequest{{UserID: user.ID, BookID: books[0].ID, Quantity: 2}})
	require.NoError(t, err)

	loans, err := s.members.Loans(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, 2, loans[0].Qty)

	_, err = s.members.Loans(ctx, 999)
	assert.ErrorIs(t, err, repo.ErrUserNotFound)

	assert.ErrorIs(t, s.members.Delete(ctx, user.ID), repo.ErrUserHasLoans)

	_, err = s.engine.Return(ctx, []inventory.ReturnRequest{{IssueID: issued.Items[0].IssueID, Quantity: 2}})
	require.NoError(t, err)

	require.NoError(t, s.members.Update(ctx, UserUpdate{ID: user.ID, Email: "ann@library.org", Password: "new", Role: db.RoleAdmin}))
	assert.ErrorIs(t, s.members.Update(ctx, UserUpdate{ID: 999, Email: "x@y.z", Password: "p", Role: db.RoleMember}), repo.ErrUserNotFound)

	listed, err := s.members.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "ann@library.org", listed[0].Email)
	assert.Equal(t, db.RoleAdmin, listed[0].Role)

	require.NoError(t, s.members.Delete(ctx, user.ID))
}

func TestLogin(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	_, err := s.members.Add(ctx, []NewUser{{Email: "Admin@example.com", Password: "s3cret", Role: db.RoleAdmin}})
	require.NoError(t, err)

	token, err := s.sessions.Login(ctx, "Admin@example.com", "s3cret")
	require.NoError(t, err)

	claims, err := s.tokens.Authorize(token, db.RoleAdmin)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)

	_, err = s.sessions.Login(ctx, "Admin@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidLogin)

	_, err = s.sessions.Login(ctx, "admin@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidLogin)
}
