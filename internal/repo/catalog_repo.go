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

// CatalogRepository handles book catalog operations
type CatalogRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(database *db.DB, logger *zap.Logger) *CatalogRepository {
	return &CatalogRepository{
		db:  database,
		log: logger,
	}
}

// ListBooks returns every book ordered by id
func (r *CatalogRepository) ListBooks(ctx context.Context) ([]*db.Book, error) {
	var books []*db.Book
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&books).Error; err != nil {
		r.log.Error("Failed to list books", zap.Error(err))
		return nil, err
	}
	return books, nil
}

// SearchBooks returns books whose title or author contains term, ignoring case
func (r *CatalogRepository) SearchBooks(ctx context.Context, term string) ([]*db.Book, error) {
	pattern := "%" + escapeLike(term) + "%"

	var books []*db.Book
	err := r.db.WithContext(ctx).
		Where("LOWER(title) LIKE LOWER(?) ESCAPE '\\' OR LOWER(author) LIKE LOWER(?) ESCAPE '\\'", pattern, pattern).
		Order("id ASC").
		Find(&books).Error
	if err != nil {
		r.log.Error("Failed to search books", zap.String("term", term), zap.Error(err))
		return nil, err
	}
	return books, nil
}

// GetBook retrieves a book by id
func (r *CatalogRepository) GetBook(ctx context.Context, id uint) (*db.Book, error) {
	var book db.Book
	err := r.db.WithContext(ctx).First(&book, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		r.log.Error("Failed to get book", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	return &book, nil
}

// CreateBook inserts a new book. Quantity must be positive.
func (r *CatalogRepository) CreateBook(ctx context.Context, book *db.Book) error {
	if book.Quantity <= 0 {
		return ErrInvalidQuantity
	}

	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBook
		}
		r.log.Error("Failed to create book", zap.String("title", book.Title), zap.Error(err))
		return err
	}

	r.log.Info("Book created",
		zap.Uint("id", book.ID),
		zap.String("title", book.Title),
		zap.Int("quantity", book.Quantity),
	)
	return nil
}

// UpdateBook overwrites title, author and quantity of an existing book
func (r *CatalogRepository) UpdateBook(ctx context.Context, book *db.Book) error {
	if book.Quantity <= 0 {
		return ErrInvalidQuantity
	}

	result := r.db.WithContext(ctx).Model(&db.Book{}).Where("id = ?", book.ID).Updates(map[string]interface{}{
		"title":    book.Title,
		"author":   book.Author,
		"quantity": book.Quantity,
	})
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return ErrDuplicateBook
		}
		r.log.Error("Failed to update book", zap.Uint("id", book.ID), zap.Error(result.Error))
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}

	r.log.Info("Book updated", zap.Uint("id", book.ID), zap.Int("quantity", book.Quantity))
	return nil
}

// DeleteBook removes a book that no open issued record references
func (r *CatalogRepository) DeleteBook(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book db.Book
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&book, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		var open int64
		if err := tx.Model(&db.IssuedRecord{}).Where("book_id = ?", id).Count(&open).Error; err != nil {
			return fmt.Errorf("count open issues: %w", err)
		}
		if open > 0 {
			return ErrBookInUse
		}

		if err := tx.Delete(&db.Book{}, id).Error; err != nil {
			if isForeignKeyViolation(err) {
				return ErrBookInUse
			}
			return err
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrBookNotFound) && !errors.Is(err, ErrBookInUse) {
			r.log.Error("Failed to delete book", zap.Uint("id", id), zap.Error(err))
		}
		return err
	}

	r.log.Info("Book deleted", zap.Uint("id", id))
	return nil
}

// GetStats returns catalog statistics for metrics
func (r *CatalogRepository) GetStats(ctx context.Context) (titles, onShelf int64, err error) {
	if err := r.db.WithContext(ctx).Model(&db.Book{}).Count(&titles).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count books: %w", err)
	}

	if err := r.db.WithContext(ctx).Model(&db.Book{}).Select("COALESCE(SUM(quantity), 0)").Scan(&onShelf).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to sum book quantities: %w", err)
	}

	return titles, onShelf, nil
}

func escapeLike(s string) string {
	var out []rune
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
