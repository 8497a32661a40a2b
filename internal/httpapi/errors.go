package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bookstore/services/library/internal/auth"
	"github.com/bookstore/services/library/internal/repo"
	"github.com/bookstore/services/library/internal/service"
)

var statusByError = []struct {
	err    error
	status int
}{
	{repo.ErrInvalidQuantity, http.StatusBadRequest},
	{repo.ErrInvalidInput, http.StatusBadRequest},
	{repo.ErrBookMismatch, http.StatusBadRequest},

	{auth.ErrMissingCredential, http.StatusUnauthorized},
	{auth.ErrExpiredCredential, http.StatusUnauthorized},
	{auth.ErrInvalidCredential, http.StatusUnauthorized},
	{service.ErrInvalidLogin, http.StatusUnauthorized},

	{auth.ErrPermissionDenied, http.StatusForbidden},

	{repo.ErrBookNotFound, http.StatusNotFound},
	{repo.ErrUserNotFound, http.StatusNotFound},
	{repo.ErrIssueRecordNotFound, http.StatusNotFound},

	{repo.ErrDuplicateBook, http.StatusConflict},
	{repo.ErrDuplicateEmail, http.StatusConflict},
	{repo.ErrBookInUse, http.StatusConflict},
	{repo.ErrUserHasLoans, http.StatusConflict},
	{repo.ErrInsufficientStock, http.StatusConflict},
	{repo.ErrOverReturn, http.StatusConflict},
}

// statusFor maps a domain error to its HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	for _, entry := range statusByError {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return http.StatusInternalServerError
}

// publicMessage keeps store internals out of 500 responses.
func publicMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

// respondError aborts the request with the mapped status.
func (s *Server) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": publicMessage(err, status)})
}

// respondBatchError reports a failed batch together with the items that were
// applied before it stopped.
func (s *Server) respondBatchError(c *gin.Context, err error, applied interface{}) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Batch failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err),
		)
	}

	body := gin.H{
		"error": publicMessage(err, status),
		"items": applied,
	}
	var itemErr *repo.ItemError
	if errors.As(err, &itemErr) {
		body["failed_index"] = itemErr.Index
	}
	c.AbortWithStatusJSON(status, body)
}
