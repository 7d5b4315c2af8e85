package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/partsdepot/cart-service/pkg/errors"
)

// memoryIdempotencyStore keeps records in a map and remembers the TTL each
// key was last written with.
type memoryIdempotencyStore struct {
	records map[string]string
	ttls    map[string]time.Duration
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{records: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.records[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryIdempotencyStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.records[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, taken := m.records[key]; taken {
		return false, nil
	}
	return true, m.Set(ctx, key, value, ttl)
}

func (m *memoryIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.records, key)
		delete(m.ttls, key)
	}
	return nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

type mutation struct {
	method, path, pattern string
	key, body             string
	userID, sessionID     string
}

func (m mutation) request() *http.Request {
	var body io.Reader
	if m.body != "" {
		body = strings.NewReader(m.body)
	}
	req := httptest.NewRequest(m.method, m.path, body)
	if m.key != "" {
		req.Header.Set(idempotencyHeader, m.key)
	}
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{m.pattern}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	if m.userID != "" {
		ctx = WithUserID(ctx, m.userID)
	}
	if m.sessionID != "" {
		ctx = WithSessionID(ctx, m.sessionID)
	}
	return req.WithContext(ctx)
}

func addItem(key, body, session string) mutation {
	return mutation{
		method: http.MethodPost, path: "/api/v1/cart/items", pattern: "/api/v1/cart/items",
		key: key, body: body, sessionID: session,
	}
}

func syncCart(key, body string) mutation {
	return mutation{
		method: http.MethodPut, path: "/api/v1/cart/sync", pattern: "/api/v1/cart/sync",
		key: key, body: body, sessionID: "guest-sync",
	}
}

// countingHandler answers every call with status and body and counts calls.
func countingHandler(calls *int, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestRouteTTL(t *testing.T) {
	cases := []struct {
		method, pattern string
		want            time.Duration
		covered         bool
	}{
		{http.MethodPost, "/api/v1/cart/items", defaultIdempotencyTTL, true},
		{http.MethodPut, "/api/v1/cart/sync", defaultIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/cart/session/login", sessionIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/cart/session/logout", sessionIdempotencyTTL, true},
		{http.MethodGet, "/api/v1/cart", 0, false},
		{http.MethodPatch, "/api/v1/cart/items/{itemId}", 0, false},
		{http.MethodPost, "", 0, false},
	}
	for _, tc := range cases {
		ttl, covered := routeTTL(tc.method, tc.pattern)
		assert.Equal(t, tc.covered, covered, "%s %s", tc.method, tc.pattern)
		assert.Equal(t, tc.want, ttl, "%s %s", tc.method, tc.pattern)
	}
}

func TestIdempotencyRequiresKeyOnCoveredRoutes(t *testing.T) {
	var calls int
	h := Idempotency(newMemoryIdempotencyStore(), nil)(countingHandler(&calls, http.StatusCreated, `{}`))

	rec := serve(h, addItem("", `{"quantity":1}`, "guest-1").request())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))
	assert.Zero(t, calls)
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store := newMemoryIdempotencyStore()
	var calls int
	h := Idempotency(store, nil)(countingHandler(&calls, http.StatusCreated, `{"data":{"total":"12.00"}}`))
	m := addItem("add-1", `{"quantity":1}`, "guest-1")

	first := serve(h, m.request())
	replay := serve(h, m.request())

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get(replayedHeader))
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "true", replay.Header().Get(replayedHeader))
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"total":"12.00"}}`, replay.Body.String())
	assert.Equal(t, 1, calls)

	for key, ttl := range store.ttls {
		assert.Equal(t, defaultIdempotencyTTL, ttl, key)
	}
}

func TestIdempotencyRejectsDuplicateWhileRunning(t *testing.T) {
	store := newMemoryIdempotencyStore()
	login := mutation{
		method: http.MethodPost, path: "/api/v1/cart/session/login", pattern: "/api/v1/cart/session/*",
		key: "login-1", body: `{}`, userID: "user-1",
	}

	var mw func(http.Handler) http.Handler
	var duplicate *httptest.ResponseRecorder
	var calls int
	var h http.Handler
	h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			duplicate = serve(mw(h), login.request())
		}
		w.WriteHeader(http.StatusOK)
	})
	mw = Idempotency(store, nil)

	rec := serve(mw(h), login.request())

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, duplicate)
	assert.Equal(t, http.StatusConflict, duplicate.Code)
	assert.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, duplicate))
	assert.Equal(t, 1, calls)
}

func TestIdempotencyRejectsKeyReuseWithNewBody(t *testing.T) {
	var calls int
	h := Idempotency(newMemoryIdempotencyStore(), nil)(countingHandler(&calls, http.StatusOK, `{}`))

	serve(h, syncCart("sync-1", `{"items":[]}`).request())
	rec := serve(h, syncCart("sync-1", `{"items":[{"quantity":2}]}`).request())

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
	assert.Equal(t, 1, calls)
}

func TestIdempotencyScopesKeysToOwner(t *testing.T) {
	var calls int
	h := Idempotency(newMemoryIdempotencyStore(), nil)(countingHandler(&calls, http.StatusCreated, `{}`))

	serve(h, addItem("shared", `{"quantity":1}`, "guest-1").request())
	rec := serve(h, addItem("shared", `{"quantity":1}`, "guest-2").request())

	assert.Empty(t, rec.Header().Get(replayedHeader))
	assert.Equal(t, 2, calls)
}

func TestIdempotencyReplaysLoginAfterGuestSessionRevoked(t *testing.T) {
	var calls int
	h := Idempotency(newMemoryIdempotencyStore(), nil)(countingHandler(&calls, http.StatusOK, `{"data":{"merged":true}}`))
	login := mutation{
		method: http.MethodPost, path: "/api/v1/cart/session/login", pattern: "/api/v1/cart/session/*",
		key: "login-2", body: `{}`, userID: "user-7", sessionID: "guest-7",
	}

	first := serve(h, login.request())
	login.sessionID = ""
	retry := serve(h, login.request())

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, retry.Code)
	assert.Equal(t, "true", retry.Header().Get(replayedHeader))
	assert.JSONEq(t, `{"data":{"merged":true}}`, retry.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIdempotencyForgetsServerErrors(t *testing.T) {
	store := newMemoryIdempotencyStore()
	var calls int
	h := Idempotency(store, nil)(countingHandler(&calls, http.StatusServiceUnavailable, `{}`))

	serve(h, syncCart("flaky", `{"items":[]}`).request())
	serve(h, syncCart("flaky", `{"items":[]}`).request())

	assert.Equal(t, 2, calls)
	assert.Empty(t, store.records)
}

func TestIdempotencyReleasesKeyWhenHandlerPanics(t *testing.T) {
	store := newMemoryIdempotencyStore()
	h := Idempotency(store, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	assert.Panics(t, func() { serve(h, addItem("crash", `{}`, "guest-1").request()) })
	assert.Empty(t, store.records)
}

func TestIdempotencyPassesThroughUncoveredRoutes(t *testing.T) {
	var calls int
	h := Idempotency(newMemoryIdempotencyStore(), nil)(countingHandler(&calls, http.StatusOK, `{}`))
	read := mutation{method: http.MethodGet, path: "/api/v1/cart", pattern: "/api/v1/cart"}

	rec := serve(h, read.request())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)
}
