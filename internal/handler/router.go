package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/veridian-labs/be-sdlc-approvals/internal/auth"
)

// RouterConfig carries the secrets the router needs.
type RouterConfig struct {
	JWTSecret           string
	SignerWebhookSecret string
	RequestTimeout      time.Duration
}

// NewRouter builds the service's HTTP routing tree. All /api/v1 routes are
// JWT-authenticated except the signer callback, which the provider
// authenticates with a shared-secret header.
func NewRouter(h *HTTPHandler, cfg RouterConfig, log zerolog.Logger) http.Handler {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Provider callback: shared secret, no JWT.
		r.With(webhookSecret(cfg.SignerWebhookSecret)).
			Post("/signatures/events", h.SignerEvent)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(cfg.JWTSecret))

			r.Post("/approvals/configure", h.ConfigureApprovers)
			r.Post("/approvals/decide", h.Decide)
			r.Get("/approvals/round", h.GetRound)
			r.Get("/approvals/pending", h.GetPending)
			r.Get("/approvals/history", h.GetHistory)

			r.Post("/projects/status/request", h.RequestStatusChange)
			r.Post("/projects/status/vote", h.VoteOnStatusChange)
			r.Get("/projects/status/request", h.GetStatusRequest)

			r.Get("/lifecycle/stages", h.GetLifecycleStages)

			r.Post("/signatures/submit", h.SubmitForSignature)
		})
	})

	return r
}

// webhookSecret authenticates provider callbacks via the X-Webhook-Secret
// header.
func webhookSecret(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "signature callbacks are not enabled", http.StatusNotFound)
				return
			}
			got := r.Header.Get("X-Webhook-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, "invalid webhook secret", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger emits one structured log line per request.
func requestLogger(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
