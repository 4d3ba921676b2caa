package middleware

import "net/http"

// UserIDHeader carries the viewer's user ID on incoming requests. The feed
// service sits behind a gateway that authenticates the user and forwards the
// resolved ID in this header.
const UserIDHeader = "X-User-ID"

// Identity resolves the viewer from the X-User-ID header into the request
// context so downstream middleware (logging, per-user rate limits) and
// handlers can read it. Requests without the header pass through unchanged;
// handlers that require a viewer reject those themselves.
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get(UserIDHeader); id != "" {
				r = r.WithContext(SetUserID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
