// Package httpapi exposes the library over HTTP with gin.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bookstore/services/library/internal/auth"
	"github.com/bookstore/services/library/internal/inventory"
	"github.com/bookstore/services/library/internal/metrics"
	"github.com/bookstore/services/library/internal/service"
)

// Pinger reports whether the database answers.
type Pinger interface {
	Ping() error
}

// HealthReporter reports whether a dependency is usable.
type HealthReporter interface {
	IsHealthy() bool
}

// Deps wires the server to the rest of the service.
type Deps struct {
	Catalog  *service.CatalogService
	Members  *service.MemberService
	Sessions *service.SessionService
	Engine   *inventory.Engine
	Tokens   *auth.TokenService
	Policy   auth.Policy
	Database Pinger
	Events   HealthReporter
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

// Server holds the handlers.
type Server struct {
	catalog  *service.CatalogService
	members  *service.MemberService
	sessions *service.SessionService
	engine   *inventory.Engine
	tokens   *auth.TokenService
	policy   auth.Policy
	database Pinger
	events   HealthReporter
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewServer creates a server. A nil Policy means auth.DefaultPolicy.
func NewServer(d Deps) *Server {
	policy := d.Policy
	if policy == nil {
		policy = auth.DefaultPolicy()
	}
	return &Server{
		catalog:  d.Catalog,
		members:  d.Members,
		sessions: d.Sessions,
		engine:   d.Engine,
		tokens:   d.Tokens,
		policy:   policy,
		database: d.Database,
		events:   d.Events,
		metrics:  d.Metrics,
		log:      d.Log,
	}
}

// Router builds the gin engine with every route behind its policy entry.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), s.accessLog(), s.recovery())

	r.POST("/login", s.authorize(auth.OpLogin), s.login)

	r.POST("/addBook", s.authorize(auth.OpAddBooks), s.addBooks)
	r.GET("/showBooks", s.authorize(auth.OpListBooks), s.showBooks)
	r.POST("/updateBooks", s.authorize(auth.OpUpdateBook), s.updateBook)
	r.POST("/deleteBooks", s.authorize(auth.OpDeleteBook), s.deleteBook)
	r.GET("/searchBooks", s.authorize(auth.OpSearchBooks), s.searchBooks)

	r.POST("/issueBook", s.authorize(auth.OpIssueBooks), s.issueBooks)
	r.POST("/returnBook", s.authorize(auth.OpReturnBooks), s.returnBooks)
	r.GET("/issuedBooks", s.authorize(auth.OpListLoans), s.issuedBooks)

	r.POST("/addUser", s.authorize(auth.OpAddUsers), s.addUsers)
	r.GET("/listUser", s.authorize(auth.OpListUsers), s.listUsers)
	r.POST("/updateUser", s.authorize(auth.OpUpdateUser), s.updateUser)
	r.POST("/deleteUser", s.authorize(auth.OpDeleteUser), s.deleteUser)

	r.GET("/healthz", s.healthz)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

func (s *Server) healthz(c *gin.Context) {
	if s.database != nil {
		if err := s.database.Ping(); err != nil {
			s.log.Error("Database health check failed", zap.Error(err))
			c.String(http.StatusServiceUnavailable, "unhealthy: database connection failed")
			return
		}
	}

	if s.events != nil && !s.events.IsHealthy() {
		s.log.Error("RabbitMQ health check failed")
		c.String(http.StatusServiceUnavailable, "unhealthy: rabbitmq connection failed")
		return
	}

	c.String(http.StatusOK, "healthy")
}
