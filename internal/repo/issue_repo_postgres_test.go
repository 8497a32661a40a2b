package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookstore/services/library/internal/db/dbtest"
)

// These run against a real server: sqlite serializes everything on one
// connection, so only PostgreSQL can show two transactions racing for a row.

func TestPostgresConcurrentIssuesNeverOversell(t *testing.T) {
	const stock, workers = 5, 20

	f := newIssueFixture(t, dbtest.OpenPostgres(t), stock)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := f.issues.IssueBook(ctx, f.user.ID, f.book.ID, 1)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientStock):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, stock, succeeded)
	assert.Equal(t, workers-stock, short)
	assert.Equal(t, 0, f.stock(t))
	assert.Equal(t, stock, dbtest.OpenQuantity(t, f.database, f.book.ID))
}

func TestPostgresConcurrentFullReturnsCloseOnce(t *testing.T) {
	const stock, workers = 5, 10

	f := newIssueFixture(t, dbtest.OpenPostgres(t), stock)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	record, _, err := f.issues.IssueBook(ctx, f.user.ID, f.book.ID, 3)
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		closed int
		gone   int
	)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			outcome, err := f.issues.ReturnBook(ctx, record.IssueID, 0, 3)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				assert.True(t, outcome.Closed)
				closed++
			case errors.Is(err, ErrIssueRecordNotFound):
				gone++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, closed)
	assert.Equal(t, workers-1, gone)
	assert.Nil(t, dbtest.Record(t, f.database, record.IssueID))
	assert.Equal(t, stock, f.stock(t))
	assert.Equal(t, 0, dbtest.OpenQuantity(t, f.database, f.book.ID))
}

func TestPostgresMixedTrafficKeepsCopiesAccountedFor(t *testing.T) {
	const stock, workers = 8, 16

	f := newIssueFixture(t, dbtest.OpenPostgres(t), stock)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			record, _, err := f.issues.IssueBook(ctx, f.user.ID, f.book.ID, 2)
			if errors.Is(err, ErrInsufficientStock) {
				return
			}
			if !assert.NoError(t, err) {
				return
			}
			_, err = f.issues.ReturnBook(ctx, record.IssueID, f.book.ID, 1)
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, stock, f.stock(t)+dbtest.OpenQuantity(t, f.database, f.book.ID))
}
