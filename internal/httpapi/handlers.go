package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bookstore/services/library/internal/inventory"
	"github.com/bookstore/services/library/internal/repo"
	"github.com/bookstore/services/library/internal/service"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type idRequest struct {
	ID uint `json:"id"`
}

// bind decodes the JSON body into dst, answering 400 on failure.
func (s *Server) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.respondError(c, fmt.Errorf("%w: %v", repo.ErrInvalidInput, err))
		return false
	}
	return true
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if !s.bind(c, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		s.respondError(c, fmt.Errorf("%w: email and password are required", repo.ErrInvalidInput))
		return
	}

	token, err := s.sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) addBooks(c *gin.Context) {
	var items []service.NewBook
	if !s.bind(c, &items) {
		return
	}

	books, err := s.catalog.Add(c.Request.Context(), items)
	if err != nil {
		s.respondBatchError(c, err, nonNil(books))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "books added", "books": books})
}

func (s *Server) showBooks(c *gin.Context) {
	books, err := s.catalog.List(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(books))
}

func (s *Server) searchBooks(c *gin.Context) {
	books, err := s.catalog.Search(c.Request.Context(), c.Query("search"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(books))
}

func (s *Server) updateBook(c *gin.Context) {
	var req service.BookUpdate
	if !s.bind(c, &req) {
		return
	}

	if err := s.catalog.Update(c.Request.Context(), req); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "book updated"})
}

func (s *Server) deleteBook(c *gin.Context) {
	var req idRequest
	if !s.bind(c, &req) {
		return
	}

	if err := s.catalog.Delete(c.Request.Context(), req.ID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "book deleted"})
}

func (s *Server) issueBooks(c *gin.Context) {
	var items []inventory.IssueRequest
	if !s.bind(c, &items) {
		return
	}

	result, err := s.engine.Issue(c.Request.Context(), items)
	if err != nil {
		s.respondBatchError(c, err, result.Items)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "books issued", "items": result.Items})
}

func (s *Server) returnBooks(c *gin.Context) {
	var items []inventory.ReturnRequest
	if !s.bind(c, &items) {
		return
	}

	result, err := s.engine.Return(c.Request.Context(), items)
	if err != nil {
		s.respondBatchError(c, err, result.Items)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "books returned", "items": result.Items})
}

func (s *Server) issuedBooks(c *gin.Context) {
	var userID uint
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 0)
		if err != nil {
			s.respondError(c, fmt.Errorf("%w: user_id must be a positive integer", repo.ErrInvalidInput))
			return
		}
		userID = uint(id)
	}

	records, err := s.members.Loans(c.Request.Context(), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(records))
}

func (s *Server) addUsers(c *gin.Context) {
	var items []service.NewUser
	if !s.bind(c, &items) {
		return
	}

	users, err := s.members.Add(c.Request.Context(), items)
	if err != nil {
		s.respondBatchError(c, err, nonNil(users))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "users added", "users": users})
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.members.List(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(users))
}

func (s *Server) updateUser(c *gin.Context) {
	var req service.UserUpdate
	if !s.bind(c, &req) {
		return
	}

	if err := s.members.Update(c.Request.Context(), req); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user updated"})
}

func (s *Server) deleteUser(c *gin.Context) {
	var req idRequest
	if !s.bind(c, &req) {
		return
	}

	if err := s.members.Delete(c.Request.Context(), req.ID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

// nonNil renders empty results as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
