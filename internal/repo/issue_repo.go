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

// IssueRepository moves copies between the shelf (books.quantity) and open
// loans (issued_books). Every method runs in a single transaction and locks the
// row it reads before writing it back.
type IssueRepository struct {
	db  *db.DB
	log *zap.Logger
}

// ReturnOutcome describes the effect of one return
type ReturnOutcome struct {
	IssueID  uint
	BookID   uint
	UserID   uint
	Returned int
	OpenQty  int  // copies still out on the record, 0 once closed
	Closed   bool // record deleted
	Stock    int  // book quantity after the return
}

// NewIssueRepository creates a new issue repository
func NewIssueRepository(database *db.DB, logger *zap.Logger) *IssueRepository {
	return &IssueRepository{
		db:  database,
		log: logger,
	}
}

// IssueBook takes qty copies of a book off the shelf and opens a record for the user.
// It returns the new record and the book quantity left on the shelf.
func (r *IssueRepository) IssueBook(ctx context.Context, userID, bookID uint, qty int) (*db.IssuedRecord, int, error) {
	if qty <= 0 {
		return nil, 0, ErrInvalidQuantity
	}

	var (
		record    *db.IssuedRecord
		remaining int
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book db.Book
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&book, bookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		var users int64
		if err := tx.Model(&db.User{}).Where("id = ?", userID).Count(&users).Error; err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if users == 0 {
			return ErrUserNotFound
		}

		remaining = book.Quantity - qty
		if remaining < 0 {
			return fmt.Errorf("%w: book %d has %d, requested %d", ErrInsufficientStock, bookID, book.Quantity, qty)
		}

		// Guarded decrement: a no-op if another writer got there first.
		result := tx.Model(&db.Book{}).
			Where("id = ? AND quantity >= ?", bookID, qty).
			Update("quantity", gorm.Expr("quantity - ?", qty))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: book %d changed concurrently", ErrInsufficientStock, bookID)
		}

		record = &db.IssuedRecord{BookID: bookID, UserID: userID, Qty: qty}
		if err := tx.Omit(clause.Associations).Create(record).Error; err != nil {
			if isForeignKeyViolation(err) {
				return ErrUserNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		r.logFailure("Failed to issue book", err, zap.Uint("book_id", bookID), zap.Uint("user_id", userID), zap.Int("qty", qty))
		return nil, 0, err
	}

	r.log.Info("Book issued",
		zap.Uint("issue_id", record.IssueID),
		zap.Uint("book_id", bookID),
		zap.Uint("user_id", userID),
		zap.Int("qty", qty),
		zap.Int("remaining", remaining),
	)
	return record, remaining, nil
}

// ReturnBook puts qty copies of an issued record back on the shelf. A bookID of 0
// means "whatever book the record is for"; any other value must match the record.
func (r *IssueRepository) ReturnBook(ctx context.Context, issueID, bookID uint, qty int) (*ReturnOutcome, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	var outcome *ReturnOutcome

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record db.IssuedRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&record, "issue_id = ?", issueID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrIssueRecordNotFound
			}
			return err
		}

		if bookID != 0 && bookID != record.BookID {
			return fmt.Errorf("%w: record %d is for book %d, not %d", ErrBookMismatch, issueID, record.BookID, bookID)
		}

		if qty > record.Qty {
			return fmt.Errorf("%w: record %d has %d, returned %d", ErrOverReturn, issueID, record.Qty, qty)
		}

		outcome = &ReturnOutcome{
			IssueID:  record.IssueID,
			BookID:   record.BookID,
			UserID:   record.UserID,
			Returned: qty,
		}

		// Record first, compare-and-swap on the quantity read above: a concurrent
		// return of the same record leaves RowsAffected at 0 and nothing is restocked.
		if qty == record.Qty {
			result := tx.Where("issue_id = ? AND qty = ?", issueID, qty).Delete(&db.IssuedRecord{})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: record %d changed concurrently", ErrIssueRecordNotFound, issueID)
			}
			outcome.Closed = true
		} else {
			result := tx.Model(&db.IssuedRecord{}).
				Where("issue_id = ? AND qty = ?", issueID, record.Qty).
				Update("qty", gorm.Expr("qty - ?", qty))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: record %d changed concurrently", ErrOverReturn, issueID)
			}
			outcome.OpenQty = record.Qty - qty
		}

		result := tx.Model(&db.Book{}).
			Where("id = ?", record.BookID).
			Update("quantity", gorm.Expr("quantity + ?", qty))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrBookNotFound
		}

		return tx.Model(&db.Book{}).Where("id = ?", record.BookID).Select("quantity").Scan(&outcome.Stock).Error
	})
	if err != nil {
		r.logFailure("Failed to return book", err, zap.Uint("issue_id", issueID), zap.Int("qty", qty))
		return nil, err
	}

	r.log.Info("Book returned",
		zap.Uint("issue_id", outcome.IssueID),
		zap.Uint("book_id", outcome.BookID),
		zap.Int("qty", qty),
		zap.Int("open_qty", outcome.OpenQty),
		zap.Bool("closed", outcome.Closed),
		zap.Int("stock", outcome.Stock),
	)
	return outcome, nil
}

// ListOpen returns open issued records, for one user when userID is non-zero
func (r *IssueRepository) ListOpen(ctx context.Context, userID uint) ([]*db.IssuedRecord, error) {
	query := r.db.WithContext(ctx).Model(&db.IssuedRecord{})
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}

	var records []*db.IssuedRecord
	if err := query.Order("issue_id ASC").Find(&records).Error; err != nil {
		r.log.Error("Failed to list issued books", zap.Error(err))
		return nil, err
	}
	return records, nil
}

// logFailure keeps expected domain outcomes at info and store failures at error.
func (r *IssueRepository) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if isDomainError(err) {
		r.log.Info(msg, fields...)
		return
	}
	r.log.Error(msg, fields...)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrBookNotFound, ErrUserNotFound, ErrIssueRecordNotFound,
		ErrInsufficientStock, ErrOverReturn, ErrBookMismatch, ErrInvalidQuantity,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
