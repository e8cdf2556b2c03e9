package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Email     EmailConfig
	Jobs      JobsConfig
	Breaker   BreakerConfig
	RateLimit RateLimitConfig
	Risk      RiskConfig
}

type ServerConfig struct {
	Host string
	Port int
	// Requests per second and burst for the per-IP throttle in front of the API.
	IPRate  float64
	IPBurst int
	// AllowedOrigins feeds CORS; "*" allows any origin without credentials.
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Mode        string // "jwt" or "remote"
	SupabaseURL string
	SupabaseKey string
	JWTSecret   string
	CronSecret  string
}

type EmailConfig struct {
	BaseURL string
	APIKey  string
	From    string
}

type JobsConfig struct {
	MaxAttempts int
	Interval    time.Duration
	Concurrency int
	Lease       time.Duration
	RetryDelay  time.Duration
}

type BreakerConfig struct {
	Threshold    int
	ResetTimeout time.Duration
	CallTimeout  time.Duration
}

type RateLimitConfig struct {
	Backend string // "postgres", "redis" or "memory"
}

type RiskConfig struct {
	OTPPerPhone         int
	OTPPerIP            int
	BroadcastsPerTenant int
	FormsPerIP          int
}

func Load() (*Config, error) {
	var errs []string
	intVar := func(key string, fallback int) int {
		v, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}
	durVar := func(key string, fallback time.Duration) time.Duration {
		v, err := getEnvDuration(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}
	floatVar := func(key string, fallback float64) float64 {
		v, err := getEnvFloat(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    intVar("SERVER_PORT", 8080),
			IPRate:  floatVar("SERVER_IP_RATE", 20),
			IPBurst: intVar("SERVER_IP_BURST", 40),

			AllowedOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       intVar("DB_MAX_CONNS", 20),
			MinConns:       intVar("DB_MIN_CONNS", 2),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       intVar("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Mode:        getEnv("AUTH_MODE", "jwt"),
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_ANON_KEY", ""),
			JWTSecret:   getEnv("SUPABASE_JWT_SECRET", ""),
			CronSecret:  getEnv("CRON_SECRET", ""),
		},
		Email: EmailConfig{
			BaseURL: getEnv("EMAIL_API_URL", "https://api.resend.com"),
			APIKey:  getEnv("RESEND_API_KEY", ""),
			From:    getEnv("EMAIL_FROM", "Sangathan <no-reply@sangathan.space>"),
		},
		Jobs: JobsConfig{
			MaxAttempts: intVar("JOBS_MAX_ATTEMPTS", 3),
			Interval:    durVar("JOBS_INTERVAL", 30*time.Second),
			Concurrency: intVar("JOBS_CONCURRENCY", 4),
			Lease:       durVar("JOBS_LEASE", 5*time.Minute),
			RetryDelay:  durVar("JOBS_RETRY_DELAY", 0),
		},
		Breaker: BreakerConfig{
			Threshold:    intVar("BREAKER_THRESHOLD", 5),
			ResetTimeout: durVar("BREAKER_RESET_TIMEOUT", 60*time.Second),
			CallTimeout:  durVar("BREAKER_CALL_TIMEOUT", 15*time.Second),
		},
		RateLimit: RateLimitConfig{
			Backend: getEnv("RATE_LIMIT_BACKEND", "postgres"),
		},
		Risk: RiskConfig{
			OTPPerPhone:         intVar("RISK_OTP_PER_PHONE", 5),
			OTPPerIP:            intVar("RISK_OTP_PER_IP", 20),
			BroadcastsPerTenant: intVar("RISK_BROADCASTS_PER_TENANT", 3),
			FormsPerIP:          intVar("RISK_FORMS_PER_IP", 10),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("load config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	switch c.Auth.Mode {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			missing = append(missing, "SUPABASE_JWT_SECRET")
		}
	case "remote":
		if c.Auth.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
	default:
		return fmt.Errorf("unsupported AUTH_MODE %q", c.Auth.Mode)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
