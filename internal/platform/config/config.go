package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures deployment configuration for the webhook gateway.
// All values come from the environment so main stays lean.
type Server struct {
	Addr        string
	Environment string

	// WebhookSecret is the shared secret for HMAC signature verification.
	// Deployment-time configuration, never derived from request data.
	WebhookSecret string

	// OpsJWTSecret signs bearer tokens for the operator endpoints.
	OpsJWTSecret string

	// OpsTokenHash, when set, enables a pre-shared operator token as a
	// break-glass alternative to JWT. Holds the bcrypt hash, never the token.
	OpsTokenHash string

	// WebhookTimeout is the overall deadline for one inbound delivery,
	// covering verification, replay check, lookup, and in-process retries.
	WebhookTimeout time.Duration

	// MaxBodyBytes bounds the raw request body read by the webhook handler.
	MaxBodyBytes int64

	ReplayMaxAge      time.Duration
	ReplayDedupWindow time.Duration

	RedriveInterval time.Duration

	// CoreBaseURL locates the LMS core internal API; the gateway resolves
	// submissions, applies grades, and dispatches notifications through it.
	CoreBaseURL  string
	CoreAPIToken string

	DatabaseURL string
	RedisURL    string
}

// Defaults, overridable per environment.
var (
	DefaultWebhookTimeout    = 30 * time.Second
	DefaultMaxBodyBytes      = int64(1 << 20) // 1 MiB
	DefaultReplayMaxAge      = 5 * time.Minute
	DefaultReplayDedupWindow = 10 * time.Minute
	DefaultRedriveInterval   = time.Minute
)

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("GRADEGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	env := os.Getenv("GRADEGATE_ENV")
	if env == "" {
		env = "development"
	}

	secret := os.Getenv("WEBHOOK_SECRET")
	if secret == "" {
		// Development fallback; production deployments must override.
		secret = "dev-webhook-secret-change-in-production"
	}

	opsSecret := os.Getenv("OPS_JWT_SECRET")
	if opsSecret == "" {
		// Matches cmd/tokengen's dev secret.
		opsSecret = "dev-ops-secret-change-in-production"
	}

	return Server{
		Addr:              addr,
		Environment:       env,
		WebhookSecret:     secret,
		OpsJWTSecret:      opsSecret,
		OpsTokenHash:      os.Getenv("OPS_TOKEN_HASH"),
		WebhookTimeout:    durationEnv("WEBHOOK_TIMEOUT", DefaultWebhookTimeout),
		MaxBodyBytes:      int64Env("MAX_BODY_BYTES", DefaultMaxBodyBytes),
		ReplayMaxAge:      durationEnv("REPLAY_MAX_AGE", DefaultReplayMaxAge),
		ReplayDedupWindow: durationEnv("REPLAY_DEDUP_WINDOW", DefaultReplayDedupWindow),
		RedriveInterval:   durationEnv("REDRIVE_INTERVAL", DefaultRedriveInterval),
		CoreBaseURL:       os.Getenv("CORE_BASE_URL"),
		CoreAPIToken:      os.Getenv("CORE_API_TOKEN"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func int64Env(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
