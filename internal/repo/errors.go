package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrBookNotFound is returned when a book is not found
	ErrBookNotFound = errors.New("book not found")

	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrIssueRecordNotFound is returned when no open issued record has the given id
	ErrIssueRecordNotFound = errors.New("issue record not found")

	// ErrDuplicateBook is returned when a (title, author) pair already exists
	ErrDuplicateBook = errors.New("book already exists")

	// ErrDuplicateEmail is returned when a user with the same email already exists
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrBookInUse is returned when deleting a book that is currently borrowed
	ErrBookInUse = errors.New("book is currently borrowed")

	// ErrUserHasLoans is returned when deleting a user with open issued records
	ErrUserHasLoans = errors.New("user has borrowed books")

	// ErrInsufficientStock is returned when a book has fewer copies than requested
	ErrInsufficientStock = errors.New("not enough books available")

	// ErrOverReturn is returned when more copies are returned than were issued
	ErrOverReturn = errors.New("returned more books than borrowed")

	// ErrBookMismatch is returned when a return names a book other than the one on the record
	ErrBookMismatch = errors.New("book does not match issue record")

	// ErrInvalidQuantity is returned for a zero or negative quantity
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidInput is returned for missing or malformed fields
	ErrInvalidInput = errors.New("invalid input")
)

// ItemError identifies the batch item that stopped processing. Items before
// Index were applied.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
