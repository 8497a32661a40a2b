// Package service holds the catalog, member and session use cases that sit
// between the HTTP handlers and the repositories.
package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bookstore/services/library/internal/db"
	"github.com/bookstore/services/library/internal/events"
	"github.com/bookstore/services/library/internal/repo"
)

// BookStore is the catalog persistence the service needs.
type BookStore interface {
	ListBooks(ctx context.Context) ([]*db.Book, error)
	SearchBooks(ctx context.Context, term string) ([]*db.Book, error)
	CreateBook(ctx context.Context, book *db.Book) error
	UpdateBook(ctx context.Context, book *db.Book) error
	DeleteBook(ctx context.Context, id uint) error
}

// NewBook is one item of an add batch.
type NewBook struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Quantity int    `json:"quantity"`
}

// BookUpdate replaces every editable field of a book.
type BookUpdate struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Quantity int    `json:"quantity"`
}

// CatalogService manages books.
type CatalogService struct {
	books      BookStore
	publisher  events.BookEvents
	dispatcher *events.Dispatcher
	log        *zap.Logger
}

// NewCatalogService creates a catalog service
func NewCatalogService(books BookStore, publisher events.BookEvents, dispatcher *events.Dispatcher, log *zap.Logger) *CatalogService {
	return &CatalogService{
		books:      books,
		publisher:  publisher,
		dispatcher: dispatcher,
		log:        log,
	}
}

// Add inserts the batch in order after validating all of it. A duplicate stops
// the batch; books inserted before it are kept and returned.
func (s *CatalogService) Add(ctx context.Context, items []NewBook) ([]*db.Book, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty batch", repo.ErrInvalidInput)
	}
	for i, item := range items {
		if err := validateBook(item.Title, item.Author, item.Quantity); err != nil {
			return nil, &repo.ItemError{Index: i, Err: err}
		}
	}

	created := make([]*db.Book, 0, len(items))
	for i, item := range items {
		book := &db.Book{
			Title:    strings.TrimSpace(item.Title),
			Author:   strings.TrimSpace(item.Author),
			Quantity: item.Quantity,
		}
		if err := s.books.CreateBook(ctx, book); err != nil {
			return created, &repo.ItemError{Index: i, Err: err}
		}
		created = append(created, book)

		s.dispatcher.Go(ctx, events.EventTypeBookCreated, func(ctx context.Context) error {
			return s.publisher.PublishBookCreated(ctx, book.ID, book.Title, book.Author, book.Quantity)
		})
	}
	return created, nil
}

// Update overwrites title, author and quantity.
func (s *CatalogService) Update(ctx context.Context, update BookUpdate) error {
	if update.ID == 0 {
		return fmt.Errorf("%w: id is required", repo.ErrInvalidInput)
	}
	if err := validateBook(update.Title, update.Author, update.Quantity); err != nil {
		return err
	}

	book := &db.Book{
		ID:       update.ID,
		Title:    strings.TrimSpace(update.Title),
		Author:   strings.TrimSpace(update.Author),
		Quantity: update.Quantity,
	}
	if err := s.books.UpdateBook(ctx, book); err != nil {
		return err
	}

	s.dispatcher.Go(ctx, events.EventTypeBookUpdated, func(ctx context.Context) error {
		return s.publisher.PublishBookUpdated(ctx, book.ID, book.Title, book.Author, book.Quantity)
	})
	return nil
}

// Delete removes a book nobody has on loan.
func (s *CatalogService) Delete(ctx context.Context, id uint) error {
	if id == 0 {
		return fmt.Errorf("%w: id is required", repo.ErrInvalidInput)
	}
	if err := s.books.DeleteBook(ctx, id); err != nil {
		return err
	}

	s.dispatcher.Go(ctx, events.EventTypeBookDeleted, func(ctx context.Context) error {
		return s.publisher.PublishBookDeleted(ctx, id)
	})
	return nil
}

// List returns every book.
func (s *CatalogService) List(ctx context.Context) ([]*db.Book, error) {
	return s.books.ListBooks(ctx)
}

// Search matches term against title or author, ignoring case.
func (s *CatalogService) Search(ctx context.Context, term string) ([]*db.Book, error) {
	return s.books.SearchBooks(ctx, strings.TrimSpace(term))
}

func validateBook(title, author string, quantity int) error {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(author) == "" {
		return fmt.Errorf("%w: title and author are required", repo.ErrInvalidInput)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", repo.ErrInvalidQuantity, quantity)
	}
	return nil
}
