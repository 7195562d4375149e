package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flthibaud/rapidimg/internal/domain"
	"github.com/joho/godotenv"
)

type Config struct {
	Run     RunConfig
	Trace   TraceConfig
	Storage StorageConfig
	Notify  NotifyConfig

	// Warnings collects values that were malformed and replaced by a
	// default. They never fail the run.
	Warnings []string
}

type RunConfig struct {
	Input        string
	Output       string
	WebP         bool
	Width        *uint32
	Height       *uint32
	JPEGQuality  int
	WebPQuality  float32
	ResizePolicy domain.ResizePolicy
	MetricsFile  string
	Upload       bool
}

type TraceConfig struct {
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

type NotifyConfig struct {
	URL         string
	Secret      string
	Timeout     time.Duration
	MaxAttempts int
}

// Load reads defaults from the environment. A .env file in the working
// directory is applied first; variables already set win over it.
func Load() Config {
	var warnings []string
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		warnings = append(warnings, fmt.Sprintf("ignoring .env: %v", err))
	}

	cfg := Config{
		Run: RunConfig{
			MetricsFile: env("RAPIDIMG_METRICS_FILE", ""),
			Upload:      envBool("RAPIDIMG_UPLOAD", false),
		},
		Trace: TraceConfig{
			ServiceName:  env("OTEL_SERVICE_NAME", "rapidimg"),
			Exporter:     env("OTEL_TRACES_EXPORTER", "none"),
			OTLPEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
		Storage: StorageConfig{
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "rapidimg-outputs"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
			Prefix:    env("MINIO_PREFIX", "outputs"),
		},
		Notify: NotifyConfig{
			URL:         env("RAPIDIMG_NOTIFY_URL", ""),
			Secret:      env("RAPIDIMG_NOTIFY_SECRET", ""),
			Timeout:     envDuration("RAPIDIMG_NOTIFY_TIMEOUT", 10*time.Second),
			MaxAttempts: envInt("RAPIDIMG_NOTIFY_ATTEMPTS", 3),
		},
		Warnings: warnings,
	}

	cfg.Run.JPEGQuality = cfg.jpegQuality("RAPIDIMG_JPEG_QUALITY", env("RAPIDIMG_JPEG_QUALITY", ""))
	cfg.Run.WebPQuality = cfg.webpQuality("RAPIDIMG_WEBP_QUALITY", env("RAPIDIMG_WEBP_QUALITY", ""))

	policy, err := domain.ParseResizePolicy(env("RAPIDIMG_RESIZE_POLICY", ""))
	if err != nil {
		cfg.warnf("RAPIDIMG_RESIZE_POLICY: %v, using %s", err, domain.ResizeSeparate)
		policy = domain.ResizeSeparate
	}
	cfg.Run.ResizePolicy = policy

	return cfg
}

// Request builds the transform parameters of a run.
func (c Config) Request() domain.TransformRequest {
	mode := domain.ModeCompressInPlace
	if c.Run.WebP {
		mode = domain.ModeConvertToWebP
	}
	return domain.TransformRequest{
		InputPath:    c.Run.Input,
		OutputRoot:   c.Run.Output,
		Width:        c.Run.Width,
		Height:       c.Run.Height,
		Mode:         mode,
		JPEGQuality:  domain.JPEGQuality(c.Run.JPEGQuality),
		WebPQuality:  domain.WebPQuality(c.Run.WebPQuality),
		ResizePolicy: c.Run.ResizePolicy,
	}
}

func (c Config) Validate() error {
	if err := c.Request().Validate(); err != nil {
		return err
	}
	if c.Run.Upload && strings.TrimSpace(c.Storage.Bucket) == "" {
		return fmt.Errorf("%w: upload requires MINIO_BUCKET", domain.ErrInvalidRequest)
	}
	return nil
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// jpegQuality parses raw as a JPEG quality. Empty means the default;
// anything unparsable or outside 0..100 falls back to it with a warning.
func (c *Config) jpegQuality(source, raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.DefaultJPEGQuality
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		c.warnf("%s: invalid quality %q, using %d", source, raw, domain.DefaultJPEGQuality)
		return domain.DefaultJPEGQuality
	}
	q, ok := domain.NormalizeJPEGQuality(parsed)
	if !ok {
		c.warnf("%s: quality %d out of range 0..100, using %d", source, parsed, q)
	}
	return q
}

// webpQuality parses raw as a WebP quality. Unparsable values fall back to
// the default, out-of-range values are clamped.
func (c *Config) webpQuality(source, raw string) float32 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.DefaultWebPQuality
	}
	parsed, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		c.warnf("%s: invalid quality %q, using %.0f", source, raw, domain.DefaultWebPQuality)
		return domain.DefaultWebPQuality
	}
	q, ok := domain.ClampWebPQuality(float32(parsed))
	if !ok {
		c.warnf("%s: quality %v out of range 0..100, using %.1f", source, parsed, q)
	}
	return q
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
