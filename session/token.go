package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"plodtrack/models"

	"github.com/golang-jwt/jwt/v5"
)

// TokenManager issues and validates the signed resume token written to local
// settings after a successful login, so a restart within the same shift can
// restore the operator without re-entering the PIN.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// ResumeClaims carries the operator identity inside the resume token.
type ResumeClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue creates a signed resume token for the user.
func (m *TokenManager) Issue(u *models.User) (string, error) {
	now := time.Now()
	claims := &ResumeClaims{
		UserID: u.ID,
		Name:   u.Name,
		Role:   string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign resume token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a resume token.
func (m *TokenManager) Validate(tokenString string) (*ResumeClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ResumeClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid resume token: %w", err)
	}

	claims, ok := token.Claims.(*ResumeClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid resume token claims")
	}
	return claims, nil
}

// SaveToken persists a resume token at path. An empty token removes the file
// (logout).
func SaveToken(path, token string) error {
	if token == "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove resume token: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("failed to write resume token: %w", err)
	}
	return nil
}

// LoadToken reads a persisted resume token. A missing file is not an error,
// it just means there is no session to resume.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read resume token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
