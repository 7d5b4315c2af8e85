package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/partsdepot/cart-service/api/responses"
	"github.com/partsdepot/cart-service/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// Incoming ids are trusted only when they look like an id; anything else is
// replaced so log fields stay clean.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// RequestID propagates the caller's X-Request-Id, or mints one, into the
// response header, the log context and error bodies.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if !requestIDPattern.MatchString(id) {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			ctx := responses.WithRequestID(r.Context(), id)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
