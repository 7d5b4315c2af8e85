package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/partsdepot/cart-service/api/responses"
	pkgerrors "github.com/partsdepot/cart-service/pkg/errors"
	"github.com/partsdepot/cart-service/pkg/logger"
	pkgredis "github.com/partsdepot/cart-service/pkg/redis"
)

const (
	idempotencyHeader     = "Idempotency-Key"
	replayedHeader        = "Idempotent-Replayed"
	defaultIdempotencyTTL = 24 * time.Hour
	sessionIdempotencyTTL = 7 * 24 * time.Hour

	// pendingTTL bounds how long a crashed request can hold its key.
	pendingTTL = 30 * time.Second
)

// idempotentRoutes maps "METHOD pattern" to how long a completed response is
// kept. A trailing "/*" covers every route below that prefix.
var idempotentRoutes = map[string]time.Duration{
	http.MethodPost + " /api/v1/cart/items":     defaultIdempotencyTTL,
	http.MethodPut + " /api/v1/cart/sync":       defaultIdempotencyTTL,
	http.MethodPost + " /api/v1/cart/session/*": sessionIdempotencyTTL,
}

// storedResponse is what Redis holds under an idempotency key. A zero Status
// marks a request that is still running.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
}

func (s storedResponse) pending() bool { return s.Status == 0 }

// Idempotency makes cart mutations safe to retry. The first request under a
// key reserves it, runs, and stores its response; repeats with the same body
// get the stored response, repeats with a different body are rejected, and
// repeats that race the first one get a conflict.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := hashBody(body)
			key := store.IdempotencyKey(ownerScope(r), clientKey)

			reserved, err := reserve(ctx, store, key, fingerprint)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayOrReject(ctx, store, key, fingerprint, logg, w)
				return
			}

			completed := false
			defer func() {
				if !completed {
					release(ctx, store, key, logg)
				}
			}()

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				return
			}
			record := storedResponse{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
				RequestHash: fingerprint,
			}
			if err := persist(ctx, store, key, record, ttl); err != nil {
				if logg != nil {
					logg.Error(logg.WithField(ctx, "idempotency_key", clientKey), "persist idempotency record", err)
				}
				return
			}
			completed = true
		})
	}
}

func reserve(ctx context.Context, store pkgredis.IdempotencyStore, key, fingerprint string) (bool, error) {
	marker, err := json.Marshal(storedResponse{RequestHash: fingerprint})
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, string(marker), pendingTTL)
}

// persist overwrites the pending marker with the final response. It runs
// detached from the request so a client hanging up after the handler finished
// still leaves a replayable record.
func persist(ctx context.Context, store pkgredis.IdempotencyStore, key string, record storedResponse, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return store.Set(context.WithoutCancel(ctx), key, string(payload), ttl)
}

func release(ctx context.Context, store pkgredis.IdempotencyStore, key string, logg *logger.Logger) {
	if err := store.Del(context.WithoutCancel(ctx), key); err != nil && logg != nil {
		logg.Error(ctx, "release idempotency key", err)
	}
}

func replayOrReject(ctx context.Context, store pkgredis.IdempotencyStore, key, fingerprint string, logg *logger.Logger, w http.ResponseWriter) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var record storedResponse
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != fingerprint {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if record.pending() {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}

	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

// ownerScope keys records by cart owner so a key reused by another shopper
// never replays someone else's response. A signed-in shopper owns the cart
// whatever guest session they carry, and login revokes that session, so a
// retried login must not depend on it.
func ownerScope(r *http.Request) string {
	owner := "session:" + SessionIDFromContext(r.Context())
	if userID := UserIDFromContext(r.Context()); userID != "" {
		owner = "user:" + userID
	}
	return strings.Join([]string{owner, r.Method, r.URL.Path}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	if pattern == "" {
		return 0, false
	}
	if ttl, ok := idempotentRoutes[method+" "+pattern]; ok {
		return ttl, true
	}
	if idx := strings.LastIndex(strings.TrimSuffix(pattern, "/*"), "/"); idx > 0 {
		ttl, ok := idempotentRoutes[method+" "+pattern[:idx]+"/*"]
		return ttl, ok
	}
	return 0, false
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
