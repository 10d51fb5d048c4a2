package auth

import (
	"context"
	"encoding/json"
	"net/http"
)

type userContextKey struct{}

// RejectFunc observes requests the middleware turned away.
type RejectFunc func(r *http.Request, err *Error)

// Middleware authenticates the launch payload and stores the User in the
// request context. Rejected requests get the error's status and
// {"error": kind}.
func Middleware(authn *Authenticator, onReject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authn.Authenticate(NewHTTPRequest(r))
			if err != nil {
				authErr, ok := AsError(err)
				if !ok {
					authErr = &Error{Kind: "server_error", Status: http.StatusInternalServerError, Err: err}
				}
				if onReject != nil {
					onReject(r, authErr)
				}
				writeAuthError(w, authErr.Status, authErr.Kind)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser returns ctx carrying user. Exported so handlers can be tested
// without a signed payload.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser retrieves the authenticated user from the request context.
func GetUser(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey{}).(*User)
	return user
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
