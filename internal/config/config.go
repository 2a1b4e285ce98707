package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	DBPath    string `envconfig:"DB_PATH" default:"files.db"`
	UploadDir string `envconfig:"UPLOAD_DIR" default:"uploads"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"INFO"`

	// ChunkBytes is the window size used when a stream request omits "bytes"
	// and the size advertised to viewers.
	ChunkBytes     int64         `envconfig:"CHUNK_BYTES" default:"1048576"`
	MaxWindowBytes int64         `envconfig:"MAX_WINDOW_BYTES" default:"67108864"`
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"104857600"`
	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	ListLimit      int           `envconfig:"LIST_LIMIT" default:"200"`

	// KeepUploadsFor of zero disables the upload retention sweeper.
	KeepUploadsFor  time.Duration `envconfig:"KEEP_UPLOADS_FOR" default:"0"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`

	PutioToken string `envconfig:"PUTIO_TOKEN"`

	S3 struct {
		Region        string        `split_words:"true" default:"us-east-1"`
		Endpoint      string        `split_words:"true"`
		AccessKey     string        `split_words:"true"`
		SecretKey     string        `split_words:"true"`
		PathStyle     bool          `split_words:"true"`
		PresignExpiry time.Duration `split_words:"true" default:"1h"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"lazypreview"`
		OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
		OTLPInsecure bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:5000"`
		PublicURL       string        `split_words:"true"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"0s"`
		IdleTimeout     time.Duration `split_words:"true" default:"60s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// overlapRoom is the slack viewers need on top of a chunk to re-fetch the
// tail of the previous window.
const overlapRoom = 1 << 10

func (c *Config) validate() error {
	if c.ChunkBytes <= 0 {
		return fmt.Errorf("CHUNK_BYTES must be positive, got %d", c.ChunkBytes)
	}

	if c.MaxWindowBytes < c.ChunkBytes+overlapRoom {
		return fmt.Errorf("MAX_WINDOW_BYTES (%d) must be at least CHUNK_BYTES (%d) plus %d bytes of overlap",
			c.MaxWindowBytes, c.ChunkBytes, overlapRoom)
	}

	if c.ListLimit <= 0 {
		return fmt.Errorf("LIST_LIMIT must be positive, got %d", c.ListLimit)
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
