package platform

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidFileToken = errors.New("invalid file token")

// FileSigner issues and checks short-lived tokens for translated file URLs.
// A token is valid for exactly one file path.
type FileSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewFileSigner creates a signer. A zero ttl defaults to 24 hours.
func NewFileSigner(secret string, ttl time.Duration) *FileSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &FileSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Sign returns a token for a file path
func (s *FileSigner) Sign(filePath string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"path": filePath,
		"exp":  now.Add(s.ttl).Unix(),
		"iat":  now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign file token: %w", err)
	}
	return signed, nil
}

// Verify checks that a token is valid and was issued for filePath
func (s *FileSigner) Verify(tokenString, filePath string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return ErrInvalidFileToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ErrInvalidFileToken
	}
	if p, _ := claims["path"].(string); p != filePath {
		return ErrInvalidFileToken
	}
	return nil
}
