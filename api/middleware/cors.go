package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"https://www.partsdepot.com",
	"https://staging.partsdepot.com",
}

// CORS returns middleware that applies the API's allowed origin policy. The
// guest session header is exposed so browsers can persist it outside cookies.
func CORS(sessionHeader string) func(http.Handler) http.Handler {
	if sessionHeader == "" {
		sessionHeader = defaultSessionHeader
	}
	return cors.New(cors.Options{
		AllowedOrigins:   defaultCORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", sessionHeader, "Idempotency-Key", "X-Requested-With", requestIDHeader},
		ExposedHeaders:   []string{sessionHeader, requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
