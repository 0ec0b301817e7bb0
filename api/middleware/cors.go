package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/paytrack/pkg/types"
)

var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8888",
}

// CORS returns middleware that applies the API's allowed origin policy.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", ClientIDHeader, types.RequestIDHeader, "X-Requested-With"},
		ExposedHeaders:   []string{ClientIDHeader, types.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
