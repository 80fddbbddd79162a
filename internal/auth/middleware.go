package auth

import (
	"encoding/json"
	"net/http"

	"github.com/micro-nova/callaudio-go/internal/models"
)

const (
	apiKeyHeader     = "api-key"
	apiKeyQueryParam = "api-key"
)

// Middleware rejects requests without a valid API key with 401. The key is
// read from the api-key header, or the api-key query parameter for clients
// like EventSource that cannot set headers. In open mode all requests pass.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.IsOpenMode() {
			next.ServeHTTP(w, r)
			return
		}

		if key := r.Header.Get(apiKeyHeader); key != "" && s.VerifyKey(key) {
			next.ServeHTTP(w, r)
			return
		}
		if key := r.URL.Query().Get(apiKeyQueryParam); key != "" && s.VerifyKey(key) {
			next.ServeHTTP(w, r)
			return
		}

		s.log.Debug("auth: rejected request", "path", r.URL.Path, "remote", r.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(models.ErrUnauthorized.Status)
		_ = json.NewEncoder(w).Encode(models.ErrUnauthorized)
	})
}
