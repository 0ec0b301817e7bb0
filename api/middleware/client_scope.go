package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/angelmondragon/paytrack/api/responses"
	pkgerrors "github.com/angelmondragon/paytrack/pkg/errors"
	"github.com/angelmondragon/paytrack/pkg/logger"
	"github.com/google/uuid"
)

const (
	ClientIDHeader   = "X-Client-Id"
	ClientCookieName = "pt_client"

	clientCookieMaxAge = 30 * 24 * time.Hour
)

var clientScopePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

type scopeKey struct{}

// ClientScopeFromContext returns the scope resolved by ClientScope, or "".
func ClientScopeFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	scope, _ := ctx.Value(scopeKey{}).(string)
	return scope
}

func WithClientScope(ctx context.Context, scope string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ClientScope resolves the browser identity every tracker call is keyed by.
// The header wins over the cookie; a client with neither gets a new cookie.
func ClientScope(logg *logger.Logger, secureCookie bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := strings.TrimSpace(r.Header.Get(ClientIDHeader))
			if scope == "" {
				if cookie, err := r.Cookie(ClientCookieName); err == nil {
					scope = strings.TrimSpace(cookie.Value)
				}
			}

			if scope == "" {
				scope = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookieName,
					Value:    scope,
					Path:     "/",
					MaxAge:   int(clientCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secureCookie,
					SameSite: http.SameSiteLaxMode,
				})
			} else if !clientScopePattern.MatchString(scope) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid client id").
					WithDetails(map[string]any{"header": ClientIDHeader}))
				return
			}

			w.Header().Set(ClientIDHeader, scope)
			ctx := WithClientScope(r.Context(), scope)
			if logg != nil {
				ctx = logg.WithClientScope(ctx, scope)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
