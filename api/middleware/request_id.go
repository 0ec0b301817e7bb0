package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/paytrack/api/validators"
	"github.com/angelmondragon/paytrack/pkg/logger"
	"github.com/angelmondragon/paytrack/pkg/types"
)

const maxRequestIDLen = 64

// RequestID propagates a caller-supplied correlation id or mints one. Ids that
// are oversized or carry non-printable bytes are replaced rather than echoed.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(types.RequestIDHeader)
			if !validRequestID(reqID) {
				reqID = uuid.NewString()
			}

			w.Header().Set(types.RequestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	return validators.SanitizeString(id, maxRequestIDLen) == id
}
