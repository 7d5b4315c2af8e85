package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/partsdepot/cart-service/api/responses"
	"github.com/partsdepot/cart-service/pkg/config"
	pkgerrors "github.com/partsdepot/cart-service/pkg/errors"
	"github.com/partsdepot/cart-service/pkg/logger"
)

const (
	defaultSessionHeader = "X-Cart-Session"
	defaultSessionCookie = "pd_cart_session"
)

type guestSessions interface {
	Issue(ctx context.Context) (string, error)
	Touch(ctx context.Context, token string) (bool, error)
	TTL() time.Duration
}

// GuestSession resolves the anonymous session that owns guest carts. A token
// presented via header or cookie is extended when still live; otherwise a new
// token is issued. Authenticated requests without a token are left alone.
// The resolved token is echoed back in both the header and the cookie.
func GuestSession(sessions guestSessions, cfg config.GuestSessionConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	cfg = withSessionDefaults(cfg)
	return func(next http.Handler) http.Handler {
		if sessions == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := presentedSession(r, cfg)
			authenticated := UserIDFromContext(ctx) != ""

			if token != "" {
				live, err := sessions.Touch(ctx, token)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh guest session"))
					return
				}
				if !live {
					if logg != nil {
						logg.Debug(ctx, "guest_session.expired")
					}
					token = ""
				}
			}

			if token == "" && !authenticated {
				issued, err := sessions.Issue(ctx)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue guest session"))
					return
				}
				token = issued
			}

			if token != "" {
				writeGuestSession(w, cfg, token, sessions.TTL())
				ctx = WithSessionID(ctx, token)
				if logg != nil {
					ctx = logg.WithSessionID(ctx, token)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExpireGuestSession clears the session header and cookie on the response.
func ExpireGuestSession(w http.ResponseWriter, cfg config.GuestSessionConfig) {
	cfg = withSessionDefaults(cfg)
	w.Header().Del(cfg.HeaderName)
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func presentedSession(r *http.Request, cfg config.GuestSessionConfig) string {
	if token := strings.TrimSpace(r.Header.Get(cfg.HeaderName)); token != "" {
		return token
	}
	if cookie, err := r.Cookie(cfg.CookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func writeGuestSession(w http.ResponseWriter, cfg config.GuestSessionConfig, token string, ttl time.Duration) {
	w.Header().Set(cfg.HeaderName, token)
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func withSessionDefaults(cfg config.GuestSessionConfig) config.GuestSessionConfig {
	if cfg.HeaderName == "" {
		cfg.HeaderName = defaultSessionHeader
	}
	if cfg.CookieName == "" {
		cfg.CookieName = defaultSessionCookie
	}
	return cfg
}
