package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/paytrack/api/controllers"
	"github.com/angelmondragon/paytrack/api/middleware"
	"github.com/angelmondragon/paytrack/internal/tracking"
	"github.com/angelmondragon/paytrack/pkg/config"
	"github.com/angelmondragon/paytrack/pkg/logger"
	"github.com/angelmondragon/paytrack/pkg/redis"
)

// Dependencies are the collaborators the HTTP surface needs.
type Dependencies struct {
	Tracking tracking.Service
	// Redis backs the sandbox rate limit; nil disables it.
	Redis    *redis.Client
	Pingers  map[string]controllers.Pinger
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	pollLimiter := middleware.NewScopeLimiter(cfg.RateLimit.PollStartsPerMinute, cfg.RateLimit.PollStartBurst)
	sandboxPolicy := middleware.NewWindowPolicy("sandbox", cfg.RateLimit.SandboxWindow, cfg.RateLimit.SandboxLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Pingers))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{Timeout: 5 * time.Second}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ClientScope(logg, cfg.App.SecureCookie))

		r.Post("/checkout", controllers.Checkout(deps.Tracking, logg))
		r.Route("/payment-link", func(r chi.Router) {
			r.Get("/", controllers.ResumePaymentLink(deps.Tracking, logg))
			r.Delete("/", controllers.ClearPaymentLink(deps.Tracking, logg))
		})
		r.With(middleware.PollRateLimit(pollLimiter, logg)).Get("/payment-status", controllers.PaymentStatus(deps.Tracking, logg))

		r.Route("/poll", func(r chi.Router) {
			r.With(middleware.PollRateLimit(pollLimiter, logg)).Post("/", controllers.StartPoll(deps.Tracking, logg))
			r.Get("/", controllers.GetPoll(deps.Tracking, logg))
			r.Delete("/", controllers.StopPoll(deps.Tracking, logg))
			r.Get("/events", controllers.PollEvents(deps.Tracking, logg))
		})

		if !cfg.App.IsProd() {
			var store middleware.FixedWindowStore
			if deps.Redis != nil {
				store = deps.Redis
			}
			r.With(middleware.WindowRateLimit(sandboxPolicy, store, logg)).Post("/sandbox/simulate", controllers.SandboxSimulate(deps.Tracking, logg))
		}
	})

	return r
}
