package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
)

// AllowMethods rejects requests whose method is not in the list with
// 405 and a JSON error body. HEAD is accepted wherever GET is.
func AllowMethods(methods ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(methods)+1)
	for _, m := range methods {
		allowed[m] = true
		if m == http.MethodGet {
			allowed[http.MethodHead] = true
		}
	}
	allowHeader := strings.Join(methods, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed[r.Method] {
				w.Header().Set("Allow", allowHeader)
				writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
