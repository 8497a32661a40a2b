// Package inventory applies issue and return batches against the shelf.
//
// A batch is processed in order, one item per transaction. The first failing
// item stops the batch; items before it stay applied and are reported in the
// result so the caller can tell what happened.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bookstore/services/library/internal/db"
	"github.com/bookstore/services/library/internal/events"
	"github.com/bookstore/services/library/internal/metrics"
	"github.com/bookstore/services/library/internal/repo"
)

// Item statuses reported in a BatchResult.
const (
	StatusIssued            = metrics.OutcomeIssued
	StatusReturned          = metrics.OutcomeReturned
	StatusPartiallyReturned = metrics.OutcomePartiallyReturned
)

// IssueRequest asks for Quantity copies of BookID to be lent to UserID.
type IssueRequest struct {
	UserID   uint `json:"user_id"`
	BookID   uint `json:"book_id"`
	Quantity int  `json:"quantity"`
}

// ReturnRequest gives back Quantity copies against an issued record.
// BookID may be left 0.
type ReturnRequest struct {
	IssueID  uint `json:"issue_id"`
	BookID   uint `json:"book_id"`
	Quantity int  `json:"quantity"`
}

// ItemResult is the applied effect of one batch item.
type ItemResult struct {
	Index    int    `json:"index"`
	Status   string `json:"status"`
	IssueID  uint   `json:"issue_id"`
	BookID   uint   `json:"book_id"`
	UserID   uint   `json:"user_id"`
	Quantity int    `json:"quantity"`
	OpenQty  int    `json:"open_qty"`
	Stock    int    `json:"stock"`
}

// BatchResult lists the items that were applied, in request order.
type BatchResult struct {
	Items []ItemResult `json:"items"`
}

// Store is the transactional part of the repository the engine drives.
type Store interface {
	IssueBook(ctx context.Context, userID, bookID uint, qty int) (*db.IssuedRecord, int, error)
	ReturnBook(ctx context.Context, issueID, bookID uint, qty int) (*repo.ReturnOutcome, error)
}

// Engine runs issue and return batches.
type Engine struct {
	store      Store
	publisher  events.LoanEvents
	dispatcher *events.Dispatcher
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// NewEngine creates an engine. m may be nil.
func NewEngine(store Store, publisher events.LoanEvents, dispatcher *events.Dispatcher, m *metrics.Metrics, log *zap.Logger) *Engine {
	return &Engine{
		store:      store,
		publisher:  publisher,
		dispatcher: dispatcher,
		metrics:    m,
		log:        log,
	}
}

// Issue lends every requested item in order. Quantities are checked for the
// whole batch before anything is written.
func (e *Engine) Issue(ctx context.Context, requests []IssueRequest) (*BatchResult, error) {
	quantities := make([]int, len(requests))
	for i, req := range requests {
		quantities[i] = req.Quantity
	}
	if err := validateQuantities(quantities); err != nil {
		e.metrics.IssueItem(outcomeOf(err))
		return &BatchResult{Items: []ItemResult{}}, err
	}

	result := &BatchResult{Items: make([]ItemResult, 0, len(requests))}
	for i, req := range requests {
		record, remaining, err := e.store.IssueBook(ctx, req.UserID, req.BookID, req.Quantity)
		if err != nil {
			e.metrics.IssueItem(outcomeOf(err))
			e.log.Info("Issue batch stopped",
				zap.Int("index", i),
				zap.Int("applied", len(result.Items)),
				zap.Error(err),
			)
			return result, &repo.ItemError{Index: i, Err: err}
		}

		e.metrics.IssueItem(metrics.OutcomeIssued)
		result.Items = append(result.Items, ItemResult{
			Index:    i,
			Status:   StatusIssued,
			IssueID:  record.IssueID,
			BookID:   record.BookID,
			UserID:   record.UserID,
			Quantity: record.Qty,
			OpenQty:  record.Qty,
			Stock:    remaining,
		})

		e.dispatcher.Go(ctx, events.EventTypeBookIssued, func(ctx context.Context) error {
			return e.publisher.PublishBookIssued(ctx, record.IssueID, record.BookID, record.UserID, record.Qty, remaining)
		})
	}

	return result, nil
}

// Return takes back every requested item in order. An exact return closes the
// record and processing moves on to the next item.
func (e *Engine) Return(ctx context.Context, requests []ReturnRequest) (*BatchResult, error) {
	quantities := make([]int, len(requests))
	for i, req := range requests {
		quantities[i] = req.Quantity
	}
	if err := validateQuantities(quantities); err != nil {
		e.metrics.ReturnItem(outcomeOf(err))
		return &BatchResult{Items: []ItemResult{}}, err
	}

	result := &BatchResult{Items: make([]ItemResult, 0, len(requests))}
	for i, req := range requests {
		outcome, err := e.store.ReturnBook(ctx, req.IssueID, req.BookID, req.Quantity)
		if err != nil {
			e.metrics.ReturnItem(outcomeOf(err))
			e.log.Info("Return batch stopped",
				zap.Int("index", i),
				zap.Int("applied", len(result.Items)),
				zap.Error(err),
			)
			return result, &repo.ItemError{Index: i, Err: err}
		}

		status := StatusPartiallyReturned
		if outcome.Closed {
			status = StatusReturned
		}
		e.metrics.ReturnItem(status)
		result.Items = append(result.Items, ItemResult{
			Index:    i,
			Status:   status,
			IssueID:  outcome.IssueID,
			BookID:   outcome.BookID,
			UserID:   outcome.UserID,
			Quantity: outcome.Returned,
			OpenQty:  outcome.OpenQty,
			Stock:    outcome.Stock,
		})

		e.dispatcher.Go(ctx, events.EventTypeBookReturned, func(ctx context.Context) error {
			return e.publisher.PublishBookReturned(ctx, outcome.IssueID, outcome.BookID, outcome.Returned, outcome.OpenQty, outcome.Closed, outcome.Stock)
		})
	}

	return result, nil
}

// validateQuantities rejects empty batches and any non-positive quantity.
func validateQuantities(quantities []int) error {
	if len(quantities) == 0 {
		return fmt.Errorf("%w: empty batch", repo.ErrInvalidInput)
	}
	for i, qty := range quantities {
		if qty <= 0 {
			return &repo.ItemError{Index: i, Err: fmt.Errorf("%w: %d", repo.ErrInvalidQuantity, qty)}
		}
	}
	return nil
}

// outcomeOf turns a failed item into a metric label.
func outcomeOf(err error) string {
	switch {
	case errors.Is(err, repo.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, repo.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, repo.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, repo.ErrOverReturn):
		return "over_return"
	case errors.Is(err, repo.ErrBookMismatch):
		return "book_mismatch"
	case errors.Is(err, repo.ErrBookNotFound),
		errors.Is(err, repo.ErrUserNotFound),
		errors.Is(err, repo.ErrIssueRecordNotFound):
		return "not_found"
	default:
		return "error"
	}
}
