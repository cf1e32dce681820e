// Package session implements cookie sessions backed by Redis. The HTTP
// layer only ever sees the Resolver interface, so tests can substitute a
// fake without a Redis instance.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// CookieName is the session cookie set on login and registration.
const CookieName = "market_session"

const keyPrefix = "session:"

// ErrNoSession is returned when a token is missing, expired or unknown.
var ErrNoSession = errors.New("no valid session")

// Resolver maps an opaque session token to a user id.
type Resolver interface {
	Resolve(ctx context.Context, token string) (int64, error)
}

// Manager creates, resolves and destroys sessions in Redis.
type Manager struct {
	redis  *redis.Client
	ttl    time.Duration
	secure bool
}

func NewManager(redisClient *redis.Client, ttl time.Duration, secureCookies bool) *Manager {
	return &Manager{redis: redisClient, ttl: ttl, secure: secureCookies}
}

// Create stores a fresh opaque token for the user and returns it.
func (m *Manager) Create(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	key := keyPrefix + token
	if err := m.redis.Set(ctx, key, strconv.FormatInt(userID, 10), m.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return token, nil
}

// Resolve implements Resolver.
func (m *Manager) Resolve(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrNoSession
	}
	val, err := m.redis.Get(ctx, keyPrefix+token).Result()
	if err == redis.Nil {
		return 0, ErrNoSession
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve session: %w", err)
	}
	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, ErrNoSession
	}
	return userID, nil
}

// Destroy removes the token. ErrNoSession is returned when there was
// nothing to remove, so logout can report a missing login.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoSession
	}
	removed, err := m.redis.Del(ctx, keyPrefix+token).Result()
	if err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	if removed == 0 {
		return ErrNoSession
	}
	return nil
}

// SetCookie attaches the session cookie to a response.
func (m *Manager) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest extracts the session token, or "" when absent.
func TokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
