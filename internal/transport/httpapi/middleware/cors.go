package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS restricts cross-origin access to the configured origins. The API
// surface is GET/POST only, so the method and header allowances stay narrow.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
		},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
