package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return false, nil
	}
	m.ttls[key] = ttl
	return true, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) GuestSessionKey(token string) string {
	return "guest:" + token
}

func newTestManager(store *mockStore) *Manager {
	return &Manager{store: store, keyer: store, ttl: time.Hour, now: time.Now}
}

func TestManagerIssueTouchRevoke(t *testing.T) {
	store := newMockStore()
	manager := newTestManager(store)
	ctx := context.Background()

	token, err := manager.Issue(ctx)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if store.ttls["guest:"+token] != time.Hour {
		t.Fatalf("expected ttl 1h, got %v", store.ttls["guest:"+token])
	}

	ok, err := manager.Touch(ctx, token)
	if err != nil || !ok {
		t.Fatalf("touch: ok=%v err=%v", ok, err)
	}
	exists, err := manager.Exists(ctx, token)
	if err != nil || !exists {
		t.Fatalf("exists: ok=%v err=%v", exists, err)
	}

	if err := manager.Revoke(ctx, token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err = manager.Touch(ctx, token)
	if err != nil || ok {
		t.Fatalf("touch after revoke: ok=%v err=%v", ok, err)
	}
	exists, err = manager.Exists(ctx, token)
	if err != nil || exists {
		t.Fatalf("exists after revoke: ok=%v err=%v", exists, err)
	}
}

func TestManagerIssuesDistinctTokens(t *testing.T) {
	manager := newTestManager(newMockStore())
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		token, err := manager.Issue(context.Background())
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token %s", token)
		}
		seen[token] = struct{}{}
	}
}

func TestManagerRejectsMalformedTokens(t *testing.T) {
	manager := newTestManager(newMockStore())
	ctx := context.Background()

	for _, token := range []string{"", "   ", "not a token!"} {
		ok, err := manager.Touch(ctx, token)
		if err != nil || ok {
			t.Fatalf("touch %q: ok=%v err=%v", token, ok, err)
		}
		if err := manager.Revoke(ctx, token); !errors.Is(err, ErrInvalidGuestToken) {
			t.Fatalf("revoke %q: expected ErrInvalidGuestToken, got %v", token, err)
		}
	}
}
