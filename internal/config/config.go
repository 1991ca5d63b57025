// Package config loads the server configuration from defaults, an optional
// parle.yaml, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/satriahrh/parle/adapters/llm"
	"github.com/satriahrh/parle/adapters/mongo"
	"github.com/satriahrh/parle/adapters/postgres"
	"github.com/satriahrh/parle/adapters/stt"
	"github.com/satriahrh/parle/adapters/tts"
)

const devJWTSecret = "parle-dev-secret"

// Provider and driver names accepted in configuration
const (
	StorageMemory   = "memory"
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"

	LLMGemini    = "gemini"
	LLMAnthropic = "anthropic"
	LLMMock      = "mock"

	STTDeepgram = "deepgram"
	STTGoogle   = "google"
	STTMock     = "mock"

	TTSElevenLabs = "elevenlabs"
	TTSMock       = "mock"
	TTSNone       = "none"
)

// Config is the root configuration of the Parle server
type Config struct {
	Server     ServerConfig         `mapstructure:"server"`
	Auth       AuthConfig           `mapstructure:"auth"`
	Storage    StorageConfig        `mapstructure:"storage"`
	Mongo      mongo.Config         `mapstructure:"mongo"`
	Postgres   postgres.Config      `mapstructure:"postgres"`
	LLM        ProviderConfig       `mapstructure:"llm"`
	Gemini     llm.GeminiConfig     `mapstructure:"gemini"`
	Anthropic  llm.AnthropicConfig  `mapstructure:"anthropic"`
	STT        ProviderConfig       `mapstructure:"stt"`
	Deepgram   stt.DeepgramConfig   `mapstructure:"deepgram"`
	Google     stt.GoogleConfig     `mapstructure:"google"`
	TTS        ProviderConfig       `mapstructure:"tts"`
	ElevenLabs tts.ElevenLabsConfig `mapstructure:"elevenlabs"`
	Tutor      TutorConfig          `mapstructure:"tutor"`
	Session    SessionConfig        `mapstructure:"session"`
	Logging    LoggingConfig        `mapstructure:"logging"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
}

// AuthConfig holds the token signing settings
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// ProviderConfig selects one implementation of an external service
type ProviderConfig struct {
	Provider string `mapstructure:"provider"`
}

// TutorConfig tunes the tutor prompt
type TutorConfig struct {
	Language     string `mapstructure:"language"`
	HistoryTurns int    `mapstructure:"history_turns"`
}

// SessionConfig tunes the session lifecycle
type SessionConfig struct {
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	AbandonAfter    time.Duration `mapstructure:"abandon_after"`
}

// LoggingConfig holds the logger settings
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

var defaults = map[string]any{
	"server.port":              8080,
	"server.allowed_origins":   []string{"*"},
	"server.shutdown_timeout":  "10s",
	"server.rate_limit_rps":    5,
	"auth.jwt_secret":          "",
	"auth.token_ttl":           "168h",
	"storage.driver":           StorageMemory,
	"mongo.uri":                "mongodb://localhost:27017",
	"mongo.database":           "parle",
	"mongo.max_pool_size":      10,
	"mongo.connect_timeout":    "10s",
	"postgres.dsn":             "",
	"postgres.max_conns":       10,
	"llm.provider":             LLMMock,
	"gemini.api_key":           "",
	"gemini.model":             "gemini-2.0-flash",
	"anthropic.api_key":        "",
	"anthropic.model":          "claude-sonnet-4-20250514",
	"anthropic.base_url":       "https://api.anthropic.com",
	"stt.provider":             STTMock,
	"deepgram.api_key":         "",
	"deepgram.model":           "nova-2",
	"deepgram.base_url":        "https://api.deepgram.com/v1",
	"google.model":             "latest_short",
	"tts.provider":             TTSNone,
	"elevenlabs.api_key":       "",
	"elevenlabs.base_url":      "https://api.elevenlabs.io",
	"elevenlabs.voice_id":      "",
	"elevenlabs.model_id":      "eleven_multilingual_v2",
	"elevenlabs.output_format": "mp3_44100_128",
	"elevenlabs.stability":     0.5,
	"elevenlabs.clarity":       0.75,
	"tutor.language":           "fr",
	"tutor.history_turns":      20,
	"session.stale_after":      "30m",
	"session.cleanup_interval": "10m",
	"session.abandon_after":    "6h",
	"logging.level":            "info",
	"logging.development":      false,
}

// aliases binds the environment names the providers document themselves
var aliases = map[string]string{
	"gemini.api_key":      "GEMINI_API_KEY",
	"anthropic.api_key":   "ANTHROPIC_API_KEY",
	"deepgram.api_key":    "DEEPGRAM_API_KEY",
	"elevenlabs.api_key":  "ELEVEN_LABS_API_KEY",
	"elevenlabs.voice_id": "ELEVEN_LABS_VOICE_ID",
	"mongo.uri":           "MONGODB_URI",
	"mongo.database":      "MONGODB_DATABASE",
	"postgres.dsn":        "DATABASE_URL",
	"auth.jwt_secret":     "JWT_SECRET",
	"server.port":         "PORT",
}

// Load reads the configuration. If configFile is empty parle.yaml is looked
// up in the working directory and /etc/parle; a missing file is not an error.
func Load(configFile string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("parle")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/parle")
	}

	v.SetEnvPrefix("PARLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range aliases {
		prefixed := "PARLE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" && cfg.Logging.Development {
		cfg.Auth.JWTSecret = devJWTSecret
	}
	return &cfg, nil
}

// Validate rejects unknown providers and missing credentials for the
// selected ones
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required outside development"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}

	switch c.Storage.Driver {
	case StorageMemory, StorageMongo:
	case StoragePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	switch c.LLM.Provider {
	case LLMMock:
	case LLMGemini:
		if err := llm.ValidateGeminiConfig(c.Gemini); err != nil {
			errs = append(errs, fmt.Errorf("gemini: %w", err))
		}
	case LLMAnthropic:
		if err := llm.ValidateAnthropicConfig(c.Anthropic); err != nil {
			errs = append(errs, fmt.Errorf("anthropic: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}

	switch c.STT.Provider {
	case STTMock, STTGoogle:
	case STTDeepgram:
		if err := stt.ValidateDeepgramConfig(c.Deepgram); err != nil {
			errs = append(errs, fmt.Errorf("deepgram: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown stt.provider %q", c.STT.Provider))
	}

	switch c.TTS.Provider {
	case TTSNone, TTSMock:
	case TTSElevenLabs:
		if err := tts.ValidateElevenLabsConfig(c.ElevenLabs); err != nil {
			errs = append(errs, fmt.Errorf("elevenlabs: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tts.provider %q", c.TTS.Provider))
	}

	if c.Tutor.HistoryTurns < 0 {
		errs = append(errs, errors.New("tutor.history_turns must not be negative"))
	}
	if c.Session.StaleAfter <= 0 || c.Session.AbandonAfter <= 0 || c.Session.CleanupInterval <= 0 {
		errs = append(errs, errors.New("session durations must be positive"))
	}
	return errors.Join(errs...)
}

// NewLogger builds the zap logger described by the logging section
func (c LoggingConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
