package middleware

import (
	"net/http"
	"strings"
)

// initDataHeaders lists the request headers the mini-app client may use to
// carry its launch payload. They must be allowed on cross-origin requests.
var initDataHeaders = []string{
	"X-Telegram-Init",
	"X-Telegram-Init-Data",
	"X-Tg-Init-Data",
	"X-Tg-Initdata",
	"X-Telegram-Initdata",
	"Telegram-Init-Data",
}

// CORS returns middleware that sets CORS headers for allowed origins.
// The origin "*" allows any origin without credentials. Preflight OPTIONS requests from an
// allowed origin are answered with 204 No Content.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		allowed[o] = true
	}
	allowHeaders := strings.Join(append([]string{"Authorization", "Content-Type", "X-Request-ID"}, initDataHeaders...), ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			// Caches must key on Origin even when the origin is rejected.
			w.Header().Set("Vary", "Origin")

			listed := origin != "" && allowed[origin]
			ok := listed || (origin != "" && wildcard)
			if ok {
				// Credentials are only granted to explicitly listed origins.
				if listed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			if ok && r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
