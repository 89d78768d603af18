package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	BackendURL     string        `env:"BACKEND_URL" envDefault:"http://localhost:2000/api"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"60s"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:"127.0.0.1:8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"0s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	CORSOrigins  string        `env:"CORS_ORIGINS"`

	// AuthToken guards the local API. It is unrelated to the backend bearer token.
	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	StateDir       string `env:"STATE_DIR" envDefault:"./state"`
	SourceLanguage string `env:"SOURCE_LANGUAGE" envDefault:"en-US"`
	TargetLanguage string `env:"TARGET_LANGUAGE" envDefault:"es"`

	CaptureCommand string `env:"CAPTURE_COMMAND" envDefault:"sox"`
	SpeechCommand  string `env:"SPEECH_COMMAND" envDefault:"espeak-ng"`
	VoiceDir       string `env:"VOICE_DIR"`

	DatabaseURL      string        `env:"DATABASE_URL"`
	JournalRetention time.Duration `env:"JOURNAL_RETENTION" envDefault:"0s"`

	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"medscribe"`
	MQTTTopic     string `env:"MQTT_TOPIC" envDefault:"medscribe/session"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC" envDefault:"medscribe.session"`

	ExportDir string `env:"EXPORT_DIR" envDefault:"./exports"`
	S3        S3Config
}

// S3Config selects the S3 export store. Empty Bucket means exports stay on disk.
type S3Config struct {
	Bucket    string `env:"S3_BUCKET"`
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	Prefix    string `env:"S3_PREFIX"`

	PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"1h"`
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// KafkaBrokerList splits KAFKA_BROKERS on commas.
func (c *Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

// CORSOriginList splits CORS_ORIGINS on commas. Empty means allow all.
func (c *Config) CORSOriginList() []string {
	return splitList(c.CORSOrigins)
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile        string
	HTTPAddr       string
	LogLevel       string
	BackendURL     string
	StateDir       string
	SourceLanguage string
	TargetLanguage string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.BackendURL != "" {
		cfg.BackendURL = overrides.BackendURL
	}
	if overrides.StateDir != "" {
		cfg.StateDir = overrides.StateDir
	}
	if overrides.SourceLanguage != "" {
		cfg.SourceLanguage = overrides.SourceLanguage
	}
	if overrides.TargetLanguage != "" {
		cfg.TargetLanguage = overrides.TargetLanguage
	}

	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
