package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/partsdepot/cart-service/pkg/config"
	redisclient "github.com/partsdepot/cart-service/pkg/redis"
)

const guestTokenBytes = 24

// ErrInvalidGuestToken is returned when a presented token is malformed.
var ErrInvalidGuestToken = errors.New("invalid guest session token")

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	GuestSessionKey(token string) string
}

// Manager issues and tracks anonymous guest session tokens. The token doubles
// as the session id that owns a guest cart.
type Manager struct {
	store sessionStore
	keyer sessionKeyer
	ttl   time.Duration
	now   func() time.Time
}

// NewManager constructs a guest session manager backed by Redis.
func NewManager(client *redisclient.Client, cfg config.GuestSessionConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("guest session ttl must be positive")
	}
	return &Manager{
		store: client,
		keyer: client,
		ttl:   cfg.TTL,
		now:   time.Now,
	}, nil
}

// TTL returns the sliding lifetime of a guest session.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue creates and stores a fresh guest session token.
func (m *Manager) Issue(ctx context.Context) (string, error) {
	token, err := generateGuestToken()
	if err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, m.keyer.GuestSessionKey(token), m.now().UTC().Format(time.RFC3339), m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Touch extends a live token and reports whether it was still known.
func (m *Manager) Touch(ctx context.Context, token string) (bool, error) {
	if !validToken(token) {
		return false, nil
	}
	return m.store.Expire(ctx, m.keyer.GuestSessionKey(token), m.ttl)
}

// Exists reports whether the token is still live without extending it.
func (m *Manager) Exists(ctx context.Context, token string) (bool, error) {
	if !validToken(token) {
		return false, nil
	}
	if _, err := m.store.Get(ctx, m.keyer.GuestSessionKey(token)); err != nil {
		if errors.Is(err, redislib.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Revoke deletes the token so the next request starts a fresh guest session.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if !validToken(token) {
		return ErrInvalidGuestToken
	}
	return m.store.Del(ctx, m.keyer.GuestSessionKey(token))
}

func validToken(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > 128 {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil
}

func generateGuestToken() (string, error) {
	bytes := make([]byte, guestTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating guest token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
