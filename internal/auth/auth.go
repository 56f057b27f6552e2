package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("auth: invalid token")

// Manager issues and verifies the HS256 bearer tokens the API uses, and owns
// password hashing.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl}
}

func (m *Manager) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

func (m *Manager) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// IssueToken returns a signed token carrying the user id, expiring after the
// configured ttl. A zero ttl issues a non-expiring token, used for bot
// accounts.
func (m *Manager) IssueToken(userID string) (string, error) {
	c := claims{UserID: userID}
	if m.ttl != 0 {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(m.ttl))
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken returns the user id carried by a valid token.
func (m *Manager) VerifyToken(token string) (string, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid || c.UserID == "" {
		return "", ErrInvalidToken
	}
	return c.UserID, nil
}
