// Package app wires the core's stores and services. The API, the worker and
// corectl all build the same graph from one Config.
package app

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dhandebaz/sangathan-sub001/internal/action"
	"github.com/dhandebaz/sangathan-sub001/internal/audit"
	"github.com/dhandebaz/sangathan-sub001/internal/auth"
	"github.com/dhandebaz/sangathan-sub001/internal/breaker"
	"github.com/dhandebaz/sangathan-sub001/internal/capability"
	"github.com/dhandebaz/sangathan-sub001/internal/config"
	"github.com/dhandebaz/sangathan-sub001/internal/database"
	"github.com/dhandebaz/sangathan-sub001/internal/email"
	"github.com/dhandebaz/sangathan-sub001/internal/jobs"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
	"github.com/dhandebaz/sangathan-sub001/internal/ratelimit"
	"github.com/dhandebaz/sangathan-sub001/internal/risk"
	"github.com/dhandebaz/sangathan-sub001/internal/tenant"
	"github.com/dhandebaz/sangathan-sub001/internal/webhook"
)

// Breaker names, one per external dependency.
const (
	BreakerEmail        = "email"
	BreakerSupabaseAuth = "supabase_auth"
)

type Options struct {
	DB database.DBTX
	// Redis is required when the rate limit backend is "redis".
	Redis    redis.UniversalClient
	Notifier jobs.Notifier
	// Sender overrides the email transport built from config.
	Sender email.Sender
	// Identity overrides the provider selected by AUTH_MODE.
	Identity auth.IdentityProvider
	Logger   *slog.Logger
}

type Services struct {
	Config       *config.Config
	Tenants      tenant.Store
	Audit        *audit.Service
	Breakers     *breaker.Registry
	Resolver     *auth.Resolver
	Envelope     *action.Envelope
	Capabilities *capability.Service
	Limiter      *ratelimit.Limiter
	Risk         *risk.Engine
	JobStore     jobs.Store
	Queue        *jobs.Queue
	Processor    *jobs.Processor
	Webhooks     *webhook.Service
}

func New(cfg *config.Config, opts Options) (*Services, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("app: database is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Services{
		Config: cfg,
		Breakers: breaker.NewRegistry(breaker.Config{
			Threshold:    cfg.Breaker.Threshold,
			ResetTimeout: cfg.Breaker.ResetTimeout,
			CallTimeout:  cfg.Breaker.CallTimeout,
		}),
	}

	tenants := tenant.NewPostgresStore(opts.DB)
	s.Tenants = tenants
	s.Audit = audit.NewService(audit.NewPostgresStore(opts.DB), logger.With("component", "audit"))

	identity := opts.Identity
	if identity == nil {
		var err error
		identity, err = s.identityProvider(cfg.Auth)
		if err != nil {
			return nil, err
		}
	}
	s.Resolver = auth.NewResolver(identity, tenants)
	s.Envelope = action.NewEnvelope(s.Resolver, logger.With("component", "action"))

	s.Capabilities = capability.NewService(tenants, s.Audit, logger.With("component", "capability"))

	rlStore, err := rateLimitStore(cfg.RateLimit, opts)
	if err != nil {
		return nil, err
	}
	s.Limiter = ratelimit.New(rlStore, s.Audit, logger.With("component", "ratelimit"))

	s.Risk = risk.NewEngine(risk.NewPostgresStore(opts.DB), tenants, s.Capabilities, risk.Thresholds{
		OTPPerPhone:       cfg.Risk.OTPPerPhone,
		OTPPerIP:          cfg.Risk.OTPPerIP,
		BroadcastsPerDay:  cfg.Risk.BroadcastsPerTenant,
		FormsPerIPPerHour: cfg.Risk.FormsPerIP,
	}, logger.With("component", "risk"))

	s.JobStore = jobs.NewPostgresStore(opts.DB)
	queueOpts := []jobs.QueueOption{jobs.WithMaxAttempts(cfg.Jobs.MaxAttempts)}
	if opts.Notifier != nil {
		queueOpts = append(queueOpts, jobs.WithNotifier(opts.Notifier))
	}
	s.Queue = jobs.NewQueue(s.JobStore, logger.With("component", "jobs"), queueOpts...)

	hooks := webhook.NewPostgresStore(opts.DB)
	s.Webhooks = webhook.NewService(hooks, s.Queue, logger.With("component", "webhook"))

	sender := opts.Sender
	if sender == nil {
		sender = email.NewResendClient(cfg.Email.BaseURL, cfg.Email.APIKey, cfg.Email.From)
	}
	registry := jobs.NewRegistry()
	registry.Register(models.JobSendEmail, jobs.SendEmail(sender, s.Breakers.Get(BreakerEmail), logger.With("component", "email")))
	registry.Register(models.JobDeliverWebhook, jobs.DeliverWebhook(webhook.NewDispatcher(hooks, s.Breakers, logger.With("component", "webhook"))))
	s.Processor = jobs.NewProcessor(s.JobStore, registry, jobs.Config{
		Lease:      cfg.Jobs.Lease,
		RetryDelay: cfg.Jobs.RetryDelay,
	}, logger.With("component", "jobs"))

	return s, nil
}

func (s *Services) identityProvider(cfg config.AuthConfig) (auth.IdentityProvider, error) {
	switch cfg.Mode {
	case "jwt", "":
		return auth.NewJWTProvider(cfg.JWTSecret), nil
	case "remote":
		return auth.NewSupabaseProvider(cfg.SupabaseURL, cfg.SupabaseKey, s.Breakers.Get(BreakerSupabaseAuth)), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

func rateLimitStore(cfg config.RateLimitConfig, opts Options) (ratelimit.Store, error) {
	switch cfg.Backend {
	case "postgres", "":
		return ratelimit.NewPostgresStore(opts.DB), nil
	case "redis":
		if opts.Redis == nil {
			return nil, fmt.Errorf("rate limit backend redis needs a redis client")
		}
		return ratelimit.NewRedisStore(opts.Redis), nil
	case "memory":
		return ratelimit.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit backend %q", cfg.Backend)
	}
}
