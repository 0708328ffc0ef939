package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// APIKeyHeader carries the shared secret on every request.
const APIKeyHeader = push.APIKeyHeader

// NewAPIKeyMiddleware rejects requests whose apikey header does not match key.
// An empty key disables the check. Preflight requests always pass.
func NewAPIKeyMiddleware(key string, logger *slog.Logger) func(http.Handler) http.Handler {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			supplied := []byte(r.Header.Get(APIKeyHeader))
			if subtle.ConstantTimeCompare(supplied, expected) != 1 {
				logger.Warn("Rejected request with invalid api key", "path", r.URL.Path, "remote", r.RemoteAddr)
				response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
