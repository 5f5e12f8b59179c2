package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewSuggestionsHolder),
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string
	PublicURL        string
	AuthCookieSecure bool
	AuthJWTSecret    string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis       RedisConfig
	RateLimit   RateLimitConfig
	LLM         LLMConfig
	Storage     StorageConfig
	Email       EmailConfig
	Realtime    RealtimeConfig
	Onboarding  OnboardingConfig
	Scheduler   SchedulerConfig
	Stats       StatsConfig
	CORSOrigins []string
	AdminEmails []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

type RateLimitConfig struct {
	Enabled        bool
	FunctionsRate  float64
	FunctionsBurst int
}

type LLMConfig struct {
	Provider      string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string
	Timeout       time.Duration
}

type StorageConfig struct {
	Driver        string
	LocalDir      string
	PublicBaseURL string
	SupabaseURL   string
	SupabaseKey   string
	Bucket        string
}

type EmailConfig struct {
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPFrom         string
	ContactRecipient string
}

type RealtimeConfig struct {
	Driver string
}

type OnboardingConfig struct {
	VerifyAttempts int
	VerifyInterval time.Duration
	MaxAvatarBytes int64
}

type SchedulerConfig struct {
	Enabled             bool
	RunInterval         time.Duration
	SessionStoreIdleTTL time.Duration
}

// StatsConfig selects where directory statistics are pushed. An empty
// exporter disables pushing.
type StatsConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:          getenv("APP_SERVICE", "toolhub"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		PublicURL:        strings.TrimRight(getenv("PUBLIC_URL", "http://localhost:8080"), "/"),
		AuthCookieSecure: authCookieSecure,
		AuthJWTSecret:    strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AccessTokenTTL:   getenvDuration("AUTH_ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:  getenvDuration("AUTH_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		OTLPEndpoint:     getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "toolhub"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getenvBool("RATE_LIMIT_ENABLED", false),
			FunctionsRate:  getenvFloat("RATE_LIMIT_FUNCTIONS_RATE", 1),
			FunctionsBurst: getenvInt("RATE_LIMIT_FUNCTIONS_BURST", 10),
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(getenv("LLM_PROVIDER", "openai")),
			OpenAIAPIKey:  strings.TrimSpace(getenv("OPENAI_API_KEY", "")),
			OpenAIBaseURL: strings.TrimRight(getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
			OpenAIModel:   getenv("OPENAI_MODEL", "gpt-4o-mini"),
			GeminiAPIKey:  strings.TrimSpace(getenv("GEMINI_API_KEY", "")),
			GeminiModel:   getenv("GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout:       getenvDuration("LLM_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(getenv("STORAGE_DRIVER", "local")),
			LocalDir:      getenv("STORAGE_LOCAL_DIR", "./data/uploads"),
			PublicBaseURL: strings.TrimRight(getenv("STORAGE_PUBLIC_BASE_URL", "/uploads"), "/"),
			SupabaseURL:   strings.TrimRight(getenv("SUPABASE_URL", ""), "/"),
			SupabaseKey:   strings.TrimSpace(getenv("SUPABASE_SERVICE_KEY", "")),
			Bucket:        getenv("STORAGE_BUCKET", "profile-pictures"),
		},
		Email: EmailConfig{
			SMTPHost:         strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:         getenvInt("SMTP_PORT", 587),
			SMTPUsername:     getenv("SMTP_USERNAME", ""),
			SMTPPassword:     getenv("SMTP_PASSWORD", ""),
			SMTPFrom:         getenv("SMTP_FROM", "no-reply@toolhub.local"),
			ContactRecipient: strings.TrimSpace(getenv("CONTACT_RECIPIENT", "")),
		},
		Realtime: RealtimeConfig{
			Driver: strings.ToLower(getenv("REALTIME_DRIVER", "")),
		},
		Onboarding: OnboardingConfig{
			VerifyAttempts: getenvInt("ONBOARDING_VERIFY_ATTEMPTS", 3),
			VerifyInterval: getenvDuration("ONBOARDING_VERIFY_INTERVAL", time.Second),
			MaxAvatarBytes: int64(getenvInt("ONBOARDING_MAX_AVATAR_BYTES", 5*1024*1024)),
		},
		Scheduler: SchedulerConfig{
			Enabled:             getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:         getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			SessionStoreIdleTTL: getenvDuration("SESSION_STORE_IDLE_TTL", 30*time.Minute),
		},
		Stats: StatsConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("STATS_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("STATS_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("STATS_AUTH_TOKEN", "")),
			Interval:  getenvDuration("STATS_PUSH_INTERVAL", 15*time.Minute),
		},
		CORSOrigins: parseList(getenv("CORS_ALLOWED_ORIGINS", "*")),
		AdminEmails: parseList(getenv("ADMIN_EMAILS", "")),
	}

	if cfg.Realtime.Driver == "" {
		cfg.Realtime.Driver = "local"
		if cfg.DBType == "postgres" {
			cfg.Realtime.Driver = "postgres"
		}
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
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

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
