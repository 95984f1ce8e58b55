package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/KairoCuan/skyclaw/internal/apikeys"
)

type publicKeyContextKey struct{}

// PublicKeyFromContext returns the apikeys.Key resolved for the current
// request by RequirePublicKey.
func PublicKeyFromContext(ctx context.Context) (apikeys.Key, bool) {
	k, ok := ctx.Value(publicKeyContextKey{}).(apikeys.Key)
	return k, ok
}

// RequirePublicKey authenticates a public route via Authorization: Bearer
// or x-api-key. If no public keys are configured at all, every request is
// rejected with 503 rather than 401, per the "closed surface" rule.
func RequirePublicKey(keys *apikeys.Set) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keys.Len() == 0 {
				RespondError(w, http.StatusServiceUnavailable, "unavailable", "public API is not configured")
				return
			}

			presented := extractPresentedKey(r)
			if presented == "" {
				RespondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token or x-api-key")
				return
			}

			k, ok := keys.Lookup(presented)
			if !ok {
				RespondError(w, http.StatusUnauthorized, "unauthorized", "unknown api key")
				return
			}

			ctx := context.WithValue(r.Context(), publicKeyContextKey{}, k)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractPresentedKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("x-api-key")
}

// PublicCORS scopes permissive CORS handling to the public job-submission
// routes. The cors middleware runs in passthrough mode so OPTIONS requests
// reach the inner handler, which short-circuits them with 204 after the
// CORS headers are set.
func PublicCORS(origin string) func(http.Handler) http.Handler {
	corsMW := cors.Handler(cors.Options{
		AllowedOrigins:     []string{origin},
		AllowedMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Idempotency-Key"},
		MaxAge:             300,
		OptionsPassthrough: true,
	})
	return func(next http.Handler) http.Handler {
		return corsMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
