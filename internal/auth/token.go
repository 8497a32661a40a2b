package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingCredential is returned when no credential was presented
	ErrMissingCredential = errors.New("token is missing")

	// ErrExpiredCredential is returned when the credential is past its expiry
	ErrExpiredCredential = errors.New("token has expired")

	// ErrInvalidCredential is returned when signature or format verification fails
	ErrInvalidCredential = errors.New("invalid token")

	// ErrPermissionDenied is returned when the credential's role does not match
	ErrPermissionDenied = errors.New("permission denied")
)

// DefaultTokenTTL is the validity window of an issued token.
const DefaultTokenTTL = time.Hour

// Claims is the decoded payload of a token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 role tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a TokenService.
type Option func(*TokenService)

// WithTTL overrides the token validity window.
func WithTTL(ttl time.Duration) Option {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a token service signing with secret.
func NewTokenService(secret []byte, opts ...Option) *TokenService {
	s := &TokenService{
		secret: secret,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token carrying role, valid for the configured TTL.
func (s *TokenService) Issue(role string) (string, error) {
	now := s.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks signature and expiry and returns the claims.
func (s *TokenService) Verify(credential string) (*Claims, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredential
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	return claims, nil
}

// Authorize verifies credential and requires its role to equal requiredRole.
func (s *TokenService) Authorize(credential, requiredRole string) (*Claims, error) {
	claims, err := s.Verify(credential)
	if err != nil {
		return nil, err
	}
	if claims.Role != requiredRole {
		return claims, ErrPermissionDenied
	}
	return claims, nil
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingCredential
	}

	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", ErrInvalidCredential
	}

	// A bare scheme carries no credential at all.
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingCredential
	}
	return token, nil
}
