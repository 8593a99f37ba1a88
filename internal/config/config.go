package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	STT      STTConfig
	Upload   UploadConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Host           string        `env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port           int           `env:"PORT" env-default:"5000"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:5173,https://talk2text-mern.vercel.app"`
	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS" env-default:"10"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" env-default:"20"`
	ReadTimeout    time.Duration `env:"SERVER_READ_TIMEOUT" env-default:"60s"`
	WriteTimeout   time.Duration `env:"SERVER_WRITE_TIMEOUT" env-default:"120s"`
}

// StoreConfig selects the transcript store backend: postgres, sqlite or supabase.
type StoreConfig struct {
	Backend         string        `env:"STORE_BACKEND" env-default:"sqlite"`
	SQLitePath      string        `env:"SQLITE_PATH" env-default:"talk2text.db"`
	SupabaseURL     string        `env:"SUPABASE_URL"`
	SupabaseKey     string        `env:"SUPABASE_SERVICE_KEY"`
	HistoryCacheTTL time.Duration `env:"HISTORY_CACHE_TTL" env-default:"5m"`
}

type DatabaseConfig struct {
	URL            string `env:"DATABASE_URL"`
	MaxConns       int    `env:"DB_MAX_CONNS" env-default:"20"`
	MinConns       int    `env:"DB_MIN_CONNS" env-default:"2"`
	MigrationsPath string `env:"MIGRATIONS_PATH" env-default:"migrations"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type AuthConfig struct {
	SupabaseURL string `env:"SUPABASE_URL"`
	SupabaseKey string `env:"SUPABASE_ANON_KEY"`
	JWTSecret   string `env:"SUPABASE_JWT_SECRET"`
	// TrustClientOwner accepts the user_id form field (and history path id) when no bearer token is sent.
	TrustClientOwner bool `env:"IDENTITY_TRUST_CLIENT_OWNER" env-default:"true"`
}

type STTConfig struct {
	Backend         string        `env:"STT_BACKEND" env-default:"google"` // "google", "openai" or "local"
	GoogleCredsFile string        `env:"GOOGLE_APPLICATION_CREDENTIALS" env-default:"google-credentials.json"`
	GoogleAPIKey    string        `env:"GOOGLE_SPEECH_API_KEY"`
	GoogleEndpoint  string        `env:"GOOGLE_SPEECH_ENDPOINT" env-default:"https://speech.googleapis.com/v1"`
	OpenAIKey       string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `env:"STT_OPENAI_BASE_URL"`
	OpenAIModel     string        `env:"STT_OPENAI_MODEL"`
	LocalBaseURL    string        `env:"STT_LOCAL_BASE_URL" env-default:"http://localhost:8178/v1"`
	Encoding        string        `env:"STT_ENCODING" env-default:"MP3"`
	SampleRateHertz int           `env:"STT_SAMPLE_RATE" env-default:"16000"`
	LanguageCode    string        `env:"STT_LANGUAGE" env-default:"en-US"`
	Timeout         time.Duration `env:"STT_TIMEOUT" env-default:"60s"`
	DetectEncoding  bool          `env:"STT_DETECT_ENCODING" env-default:"true"`
}

type UploadConfig struct {
	Dir           string        `env:"UPLOAD_DIR" env-default:"uploads"`
	MaxBytes      int64         `env:"MAX_UPLOAD_BYTES" env-default:"26214400"`
	StagingMaxAge time.Duration `env:"STAGING_MAX_AGE" env-default:"1h"`
	SweepSchedule string        `env:"STAGING_SWEEP_SCHEDULE" env-default:"@every 15m"`
}

type PipelineConfig struct {
	// SurfaceUnsavedTranscript returns recognized text alongside the error when persisting fails.
	SurfaceUnsavedTranscript bool `env:"PIPELINE_SURFACE_UNSAVED_TRANSCRIPT" env-default:"false"`
}

// Load reads an optional env file (ENV_FILE, default ".env") and then the process environment.
func Load() (*Config, error) {
	var cfg Config

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := cleanenv.ReadConfig(envFile, &cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", envFile, err)
		}
		return &cfg, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat config file %s: %w", envFile, err)
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string

	switch c.Store.Backend {
	case "postgres":
		if c.Database.URL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case "supabase":
		if c.Store.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.Store.SupabaseKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_KEY")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			missing = append(missing, "SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	switch c.STT.Backend {
	case "google", "local":
	case "openai":
		if c.STT.OpenAIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown STT_BACKEND %q", c.STT.Backend)
	}

	if !c.Auth.TrustClientOwner && c.Auth.JWTSecret == "" && c.Auth.SupabaseURL == "" {
		missing = append(missing, "SUPABASE_JWT_SECRET or SUPABASE_URL")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}
