package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelrelay/modelrelay/pkg/observability"
)

// SkipPaths lists endpoints served without credentials.
var SkipPaths = []string{"/healthz", "/metrics"}

// Middleware guards the gateway endpoints with the verifier chain and an
// optional limiter. Paths in skip are served without credentials. The
// resolved caller is stored in the request context for downstream handlers.
func Middleware(chain *Chain, limiter Limiter, skip []string) func(http.Handler) http.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Verify(r.Context(), r)
			if res.Verdict != Allow {
				slog.Warn("request rejected",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", res.Err,
				)
				writeRejection(w, r, http.StatusUnauthorized,
					"authentication_error", "invalid or missing credentials")
				return
			}
			if res.Caller == nil || res.Caller.ID == "" {
				slog.Error("verifier allowed a request without a caller")
				writeRejection(w, r, http.StatusInternalServerError,
					"api_error", "internal authentication error")
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), res.Caller); err != nil {
					slog.Warn("caller over rate limit",
						"caller", res.Caller.ID,
						"tier", res.Caller.Tier,
					)
					observability.RateLimitRejectedTotal.WithLabelValues(res.Caller.Tier).Inc()
					writeRejection(w, r, http.StatusTooManyRequests,
						"rate_limit_error", "request rate exceeded")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), res.Caller)))
		})
	}
}

// writeRejection renders the refusal in the dialect the caller speaks: the
// messages surface wraps errors in a typed envelope, the chat-completions
// surface nests them under a bare "error" key.
func writeRejection(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	detail := map[string]string{"type": kind, "message": message}
	var body any
	if strings.HasPrefix(r.URL.Path, "/v1/messages") {
		body = map[string]any{"type": "error", "error": detail}
	} else {
		body = map[string]any{"error": detail}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write rejection", "error", err.Error())
	}
}
