package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/dhandebaz/sangathan-sub001/internal/api/handlers"
	"github.com/dhandebaz/sangathan-sub001/internal/api/middleware"
	"github.com/dhandebaz/sangathan-sub001/internal/app"
	"github.com/dhandebaz/sangathan-sub001/internal/auth"
	"github.com/dhandebaz/sangathan-sub001/internal/metrics"
)

type Router struct {
	mux   *chi.Mux
	db    handlers.Pinger
	redis redis.UniversalClient
	svc   *app.Services
	ipRL  *middleware.RateLimiter
}

func NewRouter(db handlers.Pinger, rdb redis.UniversalClient, svc *app.Services) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		svc:   svc,
		ipRL:  middleware.NewRateLimiter(svc.Config.Server.IPRate, svc.Config.Server.IPBurst),
	}
}

// IPLimiter exposes the per-IP throttle so the caller can run its sweeper.
func (rt *Router) IPLimiter() *middleware.RateLimiter {
	return rt.ipRL
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	cfg := rt.svc.Config

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(rt.ipRL.Limit)
	r.Use(metrics.Instrument(routePattern))

	// Health endpoints (no auth)
	var breakers handlers.BreakerSnapshotter
	if rt.svc.Breakers != nil {
		breakers = rt.svc.Breakers
	}
	health := handlers.NewHealthHandler(rt.db, rt.redis, breakers)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	env := rt.svc.Envelope

	// Cron trigger
	jobsH := handlers.NewJobsHandler(env, rt.svc.Processor, cfg.Jobs.Concurrency)
	r.With(auth.RequireCronSecret(cfg.Auth.CronSecret)).Post("/internal/jobs/process", jobsH.Process)

	r.Route("/api/v1", func(r chi.Router) {
		publicH := handlers.NewPublicHandler(env, rt.svc.Limiter, rt.svc.Risk)
		r.Route("/public", func(r chi.Router) {
			r.Post("/otp", publicH.OTP)
			r.Post("/forms/{formID}/submissions", publicH.SubmitForm)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Session)

			capH := handlers.NewCapabilityHandler(env, rt.svc.Capabilities)
			r.Route("/capabilities", func(r chi.Router) {
				r.Get("/", capH.Get)
				r.Post("/unlock", capH.Unlock)
			})

			broadcastH := handlers.NewBroadcastHandler(env, rt.svc.Capabilities, rt.svc.Limiter,
				rt.svc.Risk, rt.svc.Queue, rt.svc.Audit, rt.svc.Webhooks)
			r.Post("/broadcasts", broadcastH.Send)

			webhookH := handlers.NewWebhookHandler(env, rt.svc.Webhooks)
			r.Route("/webhooks", func(r chi.Router) {
				r.Post("/", webhookH.Create)
				r.Get("/", webhookH.List)
				r.Delete("/{id}", webhookH.Delete)
			})

			adminH := handlers.NewAdminHandler(env, rt.svc.Audit)
			r.Route("/admin", func(r chi.Router) {
				r.Get("/audit", adminH.AuditLogs)
			})
		})
	})

	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
