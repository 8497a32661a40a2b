package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookstore/services/library/internal/auth"
	"github.com/bookstore/services/library/internal/events"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	claimsKey       = "claims"
)

// requestID propagates X-Request-ID, generating one when absent, and stores it
// on the request context so published events carry it.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(events.WithCorrelationID(c.Request.Context(), id))
		c.Next()
	}
}

// accessLog logs one line per request and feeds the HTTP metrics.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		s.metrics.ObserveRequest(c.Request.Method, c.FullPath(), status, elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("request_id", c.GetString(requestIDKey)),
		}
		if status >= http.StatusInternalServerError {
			s.log.Error("HTTP request", fields...)
			return
		}
		s.log.Info("HTTP request", fields...)
	}
}

// recovery turns a panic into a logged 500.
func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		s.log.Error("Handler panicked",
			zap.Any("panic", recovered),
			zap.String("route", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

// authorize enforces the role the policy assigns to op.
func (s *Server) authorize(op auth.Operation) gin.HandlerFunc {
	required := s.policy.RequiredRole(op)

	return func(c *gin.Context) {
		if required == auth.Public {
			c.Next()
			return
		}

		credential, err := auth.ParseBearer(c.GetHeader("Authorization"))
		if err != nil {
			s.respondError(c, err)
			return
		}

		claims, err := s.tokens.Authorize(credential, required)
		if err != nil {
			s.log.Info("Request denied",
				zap.String("operation", string(op)),
				zap.String("request_id", c.GetString(requestIDKey)),
				zap.Error(err),
			)
			s.respondError(c, err)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}
