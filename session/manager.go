// Package session issues and resolves login sessions. A session is a signed
// JWT carrying the user id and a random session id; the session id must also
// be present in a Store, which makes logout and expiry server-side.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "spinearn"

// ErrInvalidSession is returned for tokens that are malformed, expired or revoked
var ErrInvalidSession = errors.New("invalid session")

// Manager signs session tokens and checks them against the store
type Manager struct {
	secret []byte
	ttl    time.Duration
	store  Store
	now    func() time.Time
}

// NewManager creates a session manager
func NewManager(secret string, ttl time.Duration, store Store) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		store:  store,
		now:    time.Now,
	}
}

// TTL returns the lifetime of issued sessions
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue starts a session for userID and returns its token
func (m *Manager) Issue(ctx context.Context, userID int64) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	if err := m.store.Save(ctx, claims.ID, userID, m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the user id of a live session
func (m *Manager) Resolve(ctx context.Context, token string) (int64, error) {
	claims, err := m.parse(token)
	if err != nil {
		return 0, err
	}

	userID, ok, err := m.store.Lookup(ctx, claims.ID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrInvalidSession
	}

	if strconv.FormatInt(userID, 10) != claims.Subject {
		return 0, ErrInvalidSession
	}
	return userID, nil
}

// Revoke ends the session. Unparseable tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	claims, err := m.parse(token)
	if err != nil {
		return nil
	}
	return m.store.Delete(ctx, claims.ID)
}

func (m *Manager) parse(token string) (*jwt.RegisteredClaims, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid || claims.ID == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
