package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	JWTSigningKey   string
	JWTIssuer       string
}

// Postgres captures the durable-store connection settings.
type Postgres struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Redis captures connection settings for the idempotency-key store and the
// asynq broker.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures the notification publishing settings.
type Kafka struct {
	Brokers            []string
	NotificationsTopic string
}

// Blob captures object-storage settings for document bytes.
type Blob struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Upload bounds what the document workflow accepts.
type Upload struct {
	MaxSizeBytes int64
	AllowedMIME  []string
}

// Verification controls automated document verification dispatch.
type Verification struct {
	// AIEligible lists "type/mime" pairs that are dispatched to the AI
	// verifier after upload. Anything else waits for manual review.
	AIEligible  []string
	ProviderURL string
	MaxRetry    int
}

// Providers holds base URLs for the external collaborator services.
type Providers struct {
	KYCBaseURL     string
	AuthBaseURL    string
	BillingBaseURL string
	CallTimeout    time.Duration
}

// Config is the root configuration assembled from the environment.
type Config struct {
	Server       Server
	Postgres     Postgres
	Redis        Redis
	Kafka        Kafka
	Blob         Blob
	Upload       Upload
	Verification Verification
	Providers    Providers
}

// FromEnv builds a Config from environment variables so main stays lean.
// Every value has a development default; production overrides via env.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envOr("ONRAMP_ADDR", ":8080"),
			ShutdownTimeout: envDuration("ONRAMP_SHUTDOWN_TIMEOUT", 10*time.Second),
			// Default for development - must be overridden in production.
			JWTSigningKey: envOr("ONRAMP_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     envOr("ONRAMP_JWT_ISSUER", "onramp"),
		},
		Postgres: Postgres{
			DSN:             envOr("ONRAMP_POSTGRES_DSN", ""),
			MaxOpenConns:    envInt("ONRAMP_POSTGRES_MAX_OPEN", 25),
			MaxIdleConns:    envInt("ONRAMP_POSTGRES_MAX_IDLE", 5),
			ConnMaxLifetime: envDuration("ONRAMP_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: Redis{
			URL:          envOr("ONRAMP_REDIS_URL", ""),
			PoolSize:     envInt("ONRAMP_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("ONRAMP_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("ONRAMP_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("ONRAMP_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("ONRAMP_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:            envList("ONRAMP_KAFKA_BROKERS", nil),
			NotificationsTopic: envOr("ONRAMP_KAFKA_NOTIFICATIONS_TOPIC", "onboarding.notifications"),
		},
		Blob: Blob{
			Endpoint:  envOr("ONRAMP_S3_ENDPOINT", "localhost:9000"),
			AccessKey: envOr("ONRAMP_S3_ACCESS_KEY", "minioadmin"),
			SecretKey: envOr("ONRAMP_S3_SECRET_KEY", "minioadmin"),
			Bucket:    envOr("ONRAMP_S3_BUCKET", "onboarding-documents"),
			Region:    envOr("ONRAMP_S3_REGION", "us-east-1"),
			UseSSL:    os.Getenv("ONRAMP_S3_USE_SSL") == "true",
		},
		Upload: Upload{
			MaxSizeBytes: envInt64("ONRAMP_UPLOAD_MAX_BYTES", 10<<20),
			AllowedMIME: envList("ONRAMP_UPLOAD_ALLOWED_MIME", []string{
				"image/jpeg", "image/png", "application/pdf",
			}),
		},
		Verification: Verification{
			AIEligible: envList("ONRAMP_AI_ELIGIBLE", []string{
				"national_id/image/jpeg", "national_id/image/png", "national_id/application/pdf",
				"passport/image/jpeg", "passport/image/png", "passport/application/pdf",
				"proof_of_address/application/pdf",
			}),
			ProviderURL: envOr("ONRAMP_AI_PROVIDER_URL", "http://localhost:9200"),
			MaxRetry:    envInt("ONRAMP_AI_MAX_RETRY", 5),
		},
		Providers: Providers{
			KYCBaseURL:     envOr("ONRAMP_KYC_BASE_URL", "http://localhost:9100"),
			AuthBaseURL:    envOr("ONRAMP_AUTH_BASE_URL", "http://localhost:9101"),
			BillingBaseURL: envOr("ONRAMP_BILLING_BASE_URL", "http://localhost:9102"),
			CallTimeout:    envDuration("ONRAMP_PROVIDER_TIMEOUT", 10*time.Second),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return fallback
}
