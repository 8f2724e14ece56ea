package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Logger    LoggerConfig
	Artifact  ArtifactConfig
	Inference InferenceConfig
	Demo      DemoConfig
	Ledger    LedgerConfig
	CORS      CORSConfig
	Upload    UploadConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

// ArtifactConfig describes the model file and where to fetch it from.
type ArtifactConfig struct {
	Path            string
	RemoteID        string
	URLTemplate     string
	SHA256          string
	MinSize         int64
	DownloadTimeout time.Duration
	WarmOnStart     bool
}

type InferenceConfig struct {
	Mode           string // "model" or "demo"
	ImageSize      int
	Layout         string // "nhwc" or "nchw"
	Output         string // "probabilities" or "logits"
	InputName      string
	OutputName     string
	RuntimeLibrary string
}

type DemoConfig struct {
	Strategy string // "fixed" or "random"
	DelayMin time.Duration
	DelayMax time.Duration
}

// LedgerConfig enables the Postgres-backed artifact event ledger.
type LedgerConfig struct {
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (l LedgerConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		l.User, l.Password, l.Host, l.Port, l.Name, l.SSLMode)
}

type CORSConfig struct {
	AllowOrigins []string
}

type UploadConfig struct {
	MaxBytes int64
}

const (
	ModeModel = "model"
	ModeDemo  = "demo"
)

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	// Defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("LOGGER_LEVEL", "info")
	v.SetDefault("LOGGER_FORMAT", "json")

	v.SetDefault("ARTIFACT_PATH", "models/cassava_classifier.onnx")
	v.SetDefault("ARTIFACT_REMOTE_ID", "")
	v.SetDefault("ARTIFACT_URL_TEMPLATE", "https://drive.google.com/uc?export=download&id=%s")
	v.SetDefault("ARTIFACT_SHA256", "")
	v.SetDefault("ARTIFACT_MIN_SIZE", 1<<20)
	v.SetDefault("ARTIFACT_DOWNLOAD_TIMEOUT", "10m")
	v.SetDefault("ARTIFACT_WARM_ON_START", true)

	v.SetDefault("INFERENCE_MODE", ModeModel)
	v.SetDefault("INFERENCE_IMAGE_SIZE", 224)
	v.SetDefault("INFERENCE_LAYOUT", "nhwc")
	v.SetDefault("INFERENCE_OUTPUT", "probabilities")
	v.SetDefault("INFERENCE_INPUT_NAME", "input")
	v.SetDefault("INFERENCE_OUTPUT_NAME", "output")
	v.SetDefault("ONNXRUNTIME_LIBRARY", "")

	v.SetDefault("DEMO_STRATEGY", "fixed")
	v.SetDefault("DEMO_DELAY_MIN", "0s")
	v.SetDefault("DEMO_DELAY_MAX", "0s")

	v.SetDefault("LEDGER_ENABLED", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "leaf_disease")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 5)
	v.SetDefault("DB_MAX_IDLE_CONNS", 1)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")

	v.SetDefault("CORS_ALLOW_ORIGINS", "*")
	v.SetDefault("UPLOAD_MAX_BYTES", 10<<20)

	// Env
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			ShutdownTimeout: durationOr(v, "SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logger: LoggerConfig{
			Level:  v.GetString("LOGGER_LEVEL"),
			Format: v.GetString("LOGGER_FORMAT"),
		},
		Artifact: ArtifactConfig{
			Path:            v.GetString("ARTIFACT_PATH"),
			RemoteID:        v.GetString("ARTIFACT_REMOTE_ID"),
			URLTemplate:     v.GetString("ARTIFACT_URL_TEMPLATE"),
			SHA256:          strings.ToLower(strings.TrimSpace(v.GetString("ARTIFACT_SHA256"))),
			MinSize:         v.GetInt64("ARTIFACT_MIN_SIZE"),
			DownloadTimeout: durationOr(v, "ARTIFACT_DOWNLOAD_TIMEOUT", 10*time.Minute),
			WarmOnStart:     v.GetBool("ARTIFACT_WARM_ON_START"),
		},
		Inference: InferenceConfig{
			Mode:           strings.ToLower(v.GetString("INFERENCE_MODE")),
			ImageSize:      v.GetInt("INFERENCE_IMAGE_SIZE"),
			Layout:         strings.ToLower(v.GetString("INFERENCE_LAYOUT")),
			Output:         strings.ToLower(v.GetString("INFERENCE_OUTPUT")),
			InputName:      v.GetString("INFERENCE_INPUT_NAME"),
			OutputName:     v.GetString("INFERENCE_OUTPUT_NAME"),
			RuntimeLibrary: v.GetString("ONNXRUNTIME_LIBRARY"),
		},
		Demo: DemoConfig{
			Strategy: strings.ToLower(v.GetString("DEMO_STRATEGY")),
			DelayMin: durationOr(v, "DEMO_DELAY_MIN", 0),
			DelayMax: durationOr(v, "DEMO_DELAY_MAX", 0),
		},
		Ledger: LedgerConfig{
			Enabled:         v.GetBool("LEDGER_ENABLED"),
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: durationOr(v, "DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		CORS: CORSConfig{
			AllowOrigins: splitList(v.GetString("CORS_ALLOW_ORIGINS")),
		},
		Upload: UploadConfig{
			MaxBytes: v.GetInt64("UPLOAD_MAX_BYTES"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Inference.Mode {
	case ModeModel, ModeDemo:
	default:
		return fmt.Errorf("INFERENCE_MODE must be %q or %q, got %q", ModeModel, ModeDemo, c.Inference.Mode)
	}
	switch c.Inference.Layout {
	case "nhwc", "nchw":
	default:
		return fmt.Errorf("INFERENCE_LAYOUT must be nhwc or nchw, got %q", c.Inference.Layout)
	}
	switch c.Inference.Output {
	case "probabilities", "logits":
	default:
		return fmt.Errorf("INFERENCE_OUTPUT must be probabilities or logits, got %q", c.Inference.Output)
	}
	if c.Inference.ImageSize <= 0 {
		return fmt.Errorf("INFERENCE_IMAGE_SIZE must be positive")
	}
	switch c.Demo.Strategy {
	case "fixed", "random":
	default:
		return fmt.Errorf("DEMO_STRATEGY must be fixed or random, got %q", c.Demo.Strategy)
	}
	if c.Demo.DelayMax < c.Demo.DelayMin {
		return fmt.Errorf("DEMO_DELAY_MAX must not be below DEMO_DELAY_MIN")
	}
	if c.Inference.Mode == ModeModel {
		if c.Artifact.Path == "" {
			return fmt.Errorf("ARTIFACT_PATH is required in model mode")
		}
		if !strings.Contains(c.Artifact.URLTemplate, "%s") {
			return fmt.Errorf("ARTIFACT_URL_TEMPLATE must contain %%s for the remote id")
		}
	}
	if c.Artifact.MinSize < 0 {
		return fmt.Errorf("ARTIFACT_MIN_SIZE must not be negative")
	}
	return nil
}

func durationOr(v *viper.Viper, key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
