package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
)

// Config aggregates runtime configuration for the API, the admin panel and provider clients.
type Config struct {
	Env      string `envconfig:"ENV" default:"production"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	ListenAddr      string `envconfig:"LISTEN_ADDR" default:":8080"`
	AdminListenAddr string `envconfig:"ADMIN_LISTEN_ADDR" default:":8081"`
	AdminUsername   string `envconfig:"ADMIN_USERNAME" default:"admin"`
	AdminPassword   string `envconfig:"ADMIN_PASSWORD" default:"change-me"`

	DBDriver    string `envconfig:"DB_DRIVER" default:"pgx"`
	DatabaseDSN string `envconfig:"DATABASE_DSN" required:"true"`

	AuthJWTSecret    string `envconfig:"AUTH_JWT_SECRET"`
	AuthJWTPublicKey string `envconfig:"AUTH_JWT_PUBLIC_KEY"`
	AuthJWTIssuer    string `envconfig:"AUTH_JWT_ISSUER"`

	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30"`
	RateLimitBurst     int           `envconfig:"RATE_LIMIT_BURST" default:"5"`
	PlanCacheTTL       time.Duration `envconfig:"PLAN_CACHE_TTL" default:"30s"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`

	KIEAPIKey  string `envconfig:"KIE_API_KEY"`
	KIEBaseURL string `envconfig:"KIE_BASE_URL" default:"https://api.kie.ai"`

	ReplicateAPIToken string `envconfig:"REPLICATE_API_TOKEN"`
	ReplicateBaseURL  string `envconfig:"REPLICATE_BASE_URL" default:"https://api.replicate.com/v1"`

	HiggsfieldAPIKey    string `envconfig:"HIGGSFIELD_API_KEY"`
	HiggsfieldAPISecret string `envconfig:"HIGGSFIELD_API_SECRET"`
	HiggsfieldBaseURL   string `envconfig:"HIGGSFIELD_BASE_URL" default:"https://platform.higgsfield.ai"`

	RequestTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"60s"`
	PollInterval        time.Duration `envconfig:"PROVIDER_POLL_INTERVAL" default:"3s"`
	ImageInvokeTimeout  time.Duration `envconfig:"IMAGE_INVOKE_TIMEOUT" default:"2m"`
	VideoInvokeTimeout  time.Duration `envconfig:"VIDEO_INVOKE_TIMEOUT" default:"10m"`
	ChatInvokeTimeout   time.Duration `envconfig:"CHAT_INVOKE_TIMEOUT" default:"90s"`
	RefundAttempts      int           `envconfig:"REFUND_ATTEMPTS" default:"3"`
	ProviderRetries     int           `envconfig:"PROVIDER_RETRIES" default:"1"`
	ReconcileInterval   time.Duration `envconfig:"RECONCILE_INTERVAL" default:"1m"`
	ReconcileBatchSize  int           `envconfig:"RECONCILE_BATCH_SIZE" default:"50"`
	HistoryWriteTimeout time.Duration `envconfig:"HISTORY_WRITE_TIMEOUT" default:"5s"`

	S3Endpoint      string `envconfig:"S3_ENDPOINT"`
	S3Region        string `envconfig:"S3_REGION"`
	S3AccessKey     string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey     string `envconfig:"S3_SECRET_KEY"`
	S3Bucket        string `envconfig:"S3_BUCKET"`
	S3PublicBaseURL string `envconfig:"S3_PUBLIC_BASE_URL"`
	S3UsePathStyle  bool   `envconfig:"S3_USE_PATH_STYLE" default:"false"`
	S3Prefix        string `envconfig:"S3_PREFIX" default:"generations"`

	TelegramBotToken    string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramAlertChatID int64  `envconfig:"TELEGRAM_ALERT_CHAT_ID"`

	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
}

// Load reads configuration from the environment (and an optional .env file), applying defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	const defaultKIEBaseURL = "https://api.kie.ai"
	cfg.KIEBaseURL = normalizeKIEBaseURL(cfg.KIEBaseURL, defaultKIEBaseURL)
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements envconfig tags cannot express.
func (c Config) Validate() error {
	var problems []string
	switch c.DBDriver {
	case DriverMySQL, DriverPostgres:
	default:
		problems = append(problems, fmt.Sprintf("DB_DRIVER must be %q or %q", DriverMySQL, DriverPostgres))
	}
	if c.AuthJWTSecret == "" && c.AuthJWTPublicKey == "" {
		problems = append(problems, "one of AUTH_JWT_SECRET or AUTH_JWT_PUBLIC_KEY is required")
	}
	if c.OpenAIAPIKey == "" && c.GeminiAPIKey == "" && c.KIEAPIKey == "" && c.ReplicateAPIToken == "" && c.HiggsfieldAPIKey == "" {
		problems = append(problems, "at least one provider credential is required")
	}
	if c.S3Bucket != "" {
		var missing []string
		if c.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if c.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if c.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if c.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
		if len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("S3_BUCKET is set but missing %v", missing))
		}
	}
	if c.RefundAttempts < 1 {
		problems = append(problems, "REFUND_ATTEMPTS must be at least 1")
	}
	if c.ProviderRetries < 0 {
		problems = append(problems, "PROVIDER_RETRIES must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// S3Enabled reports whether generated assets should be mirrored into the bucket.
func (c Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// AlertsEnabled reports whether operator alerts can be delivered over Telegram.
func (c Config) AlertsEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramAlertChatID != 0
}

// normalizeKIEBaseURL ensures we always hit the documented API host. The root kie.ai domain
// serves the marketing site and answers API paths with HTML.
func normalizeKIEBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}

	if parsed.Host == "kie.ai" {
		parsed.Host = "api.kie.ai"
	}

	return parsed.String()
}

// loadEnvFile overlays the first .env file found. A missing file is fine in container deployments.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
