package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPlanCatalogHolder),
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string `validate:"required"`
	AuthCookieSecure bool

	LogLevel          string  `validate:"oneof=debug info warn error"`
	LogFormat         string  `validate:"oneof=json console"`
	OTLPEndpoint      string
	OTLPProtocol      string  `validate:"oneof=grpc http http/protobuf"`
	OtelEnabled       bool
	OtelSamplingRatio float64 `validate:"gte=0,lte=1"`

	StripeSecretKey     string `validate:"required"`
	StripeWebhookSecret string `validate:"required"`

	WebhookTimeout        time.Duration `validate:"gt=0"`
	WebhookMaxBodyBytes   int64         `validate:"gt=0"`
	WebhookEventRetention time.Duration
	WebhookPruneSchedule  string

	TrialDays        int `validate:"gte=0"`
	TrialMaxPatients int `validate:"gte=-1"`

	PlanCatalogPath string

	RedisAddr       string
	RedisPassword   string
	RateLimitPerMin int
	RateLimitBurst  int

	DBType            string `validate:"oneof=postgres sqlite"`
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	DBLogLevel        string
	DBSlowQuery       time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:          getenv("APP_SERVICE", "cabinet"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		AuthCookieSecure: authCookieSecure,

		LogLevel:          strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getenv("LOG_FORMAT", "json")),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:      strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		OtelEnabled:       getenvBool("OTEL_ENABLED", false),
		OtelSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),

		StripeSecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),

		WebhookTimeout:        getenvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		WebhookMaxBodyBytes:   getenvInt64("WEBHOOK_MAX_BODY_BYTES", 65536),
		WebhookEventRetention: getenvDuration("WEBHOOK_EVENT_RETENTION", 720*time.Hour),
		WebhookPruneSchedule:  getenv("WEBHOOK_PRUNE_SCHEDULE", "@hourly"),

		TrialDays:        int(getenvInt64("TRIAL_DAYS", 14)),
		TrialMaxPatients: int(getenvInt64("TRIAL_MAX_PATIENTS", 50)),

		PlanCatalogPath: getenv("PLAN_CATALOG_PATH", ""),

		RedisAddr:       strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:   getenv("REDIS_PASSWORD", ""),
		RateLimitPerMin: int(getenvInt64("RATE_LIMIT_PER_MINUTE", 600)),
		RateLimitBurst:  int(getenvInt64("RATE_LIMIT_BURST", 100)),

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "cabinet"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: getenvDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		DBConnMaxIdleTime: getenvDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
		DBLogLevel:        getenv("DATABASE_LOG_LEVEL", "warn"),
		DBSlowQuery:       getenvDuration("DATABASE_SLOW_QUERY", 200*time.Millisecond),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate fails fast on missing processor credentials and malformed tuning.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s failed %q", envName(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func envName(field string) string {
	switch field {
	case "StripeSecretKey":
		return "STRIPE_SECRET_KEY"
	case "StripeWebhookSecret":
		return "STRIPE_WEBHOOK_SECRET"
	case "WebhookTimeout":
		return "WEBHOOK_TIMEOUT"
	case "DBType":
		return "DATABASE_TYPE"
	case "LogLevel":
		return "LOG_LEVEL"
	case "LogFormat":
		return "LOG_FORMAT"
	case "OTLPProtocol":
		return "OTEL_EXPORTER_OTLP_PROTOCOL"
	case "OtelSamplingRatio":
		return "OTEL_SAMPLING_RATIO"
	default:
		return field
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
