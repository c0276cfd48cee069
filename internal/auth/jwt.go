// Package auth verifies the bearer tokens that identify users to the ranking API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAccess is the only token type the API accepts.
const TokenTypeAccess = "access"

// Token lifetime and validation leeway defaults.
const (
	DefaultTokenExpiry = 15 * time.Minute
	DefaultLeeway      = 30 * time.Second
)

// ErrInvalidToken is returned when token validation fails.
var ErrInvalidToken = errors.New("invalid token")

// ErrExpiredToken is returned when the token has expired.
var ErrExpiredToken = errors.New("token has expired")

// ErrEmptyUserID is returned when userID is empty.
var ErrEmptyUserID = errors.New("userID cannot be empty")

// Claims carries the user ID in the subject claim.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// UserID returns the token subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// Option configures a JWTService.
type Option func(*JWTService)

// WithPreviousSecret accepts tokens signed with an older secret during rotation.
// An empty secret disables the fallback.
func WithPreviousSecret(secret string) Option {
	return func(s *JWTService) {
		if secret != "" {
			s.previousSecret = []byte(secret)
		}
	}
}

// WithLeeway sets the clock skew allowed when checking expiry.
func WithLeeway(d time.Duration) Option {
	return func(s *JWTService) { s.leeway = d }
}

// WithExpiry sets the lifetime of generated tokens.
func WithExpiry(d time.Duration) Option {
	return func(s *JWTService) { s.expiry = d }
}

// JWTService signs tokens with the current secret and validates against the
// current secret, then the previous one if configured.
type JWTService struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
	expiry         time.Duration
}

// NewJWTService creates a JWTService signing with secret.
func NewJWTService(secret string, opts ...Option) *JWTService {
	s := &JWTService{
		currentSecret: []byte(secret),
		leeway:        DefaultLeeway,
		expiry:        DefaultTokenExpiry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateAccessToken creates an HS256 access token for userID.
func (s *JWTService) GenerateAccessToken(userID string) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		Type: TokenTypeAccess,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.currentSecret)
}

// ValidateToken parses and validates an access token, returning its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString, s.currentSecret)
	if err != nil && s.previousSecret != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		claims, err = s.parse(tokenString, s.previousSecret)
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if claims.Type != TokenTypeAccess || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithLeeway(s.leeway), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
