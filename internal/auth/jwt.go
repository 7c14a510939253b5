// Package auth is the identity adapter: it resolves a connection's caller
// identity from a pre-validated bearer credential. Long-term credential
// issuance lives outside this service.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the resolved caller identity carried by every connection.
type Identity struct {
	UserID      uuid.UUID
	DisplayName string
	Role        string
}

// Claims holds JWT claims including user ID, display name and role.
type Claims struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	jwt.RegisteredClaims
}

// JWTService validates bearer tokens and, for dev tooling, mints them.
type JWTService struct {
	secret      []byte
	expireHours int
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours int) *JWTService {
	return &JWTService{
		secret:      []byte(secret),
		expireHours: expireHours,
	}
}

// Generate creates a new JWT for the user. Used by the dev token endpoint only;
// production tokens come from the external identity provider sharing the secret.
func (s *JWTService) Generate(userID uuid.UUID, displayName, role string) (string, error) {
	claims := Claims{
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning claims or error.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Resolve validates a token and returns the caller identity.
func (s *JWTService) Resolve(tokenString string) (Identity, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
	}, nil
}
