package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Face      FaceConfig
	Cache     CacheConfig
	Embedding EmbeddingConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Web       WebConfig
	Log       LogConfig
}

// FaceConfig controls image acquisition, recognition and matching.
type FaceConfig struct {
	Threshold          float64       `yaml:"threshold"`
	MaxImageSize       int           `yaml:"max_image_size"`
	MaxPixels          int           `yaml:"max_pixels"`
	MaxUploadBytes     int           `yaml:"max_upload_bytes"`
	DownloadTimeout    time.Duration `yaml:"download_timeout"`
	DownloadRetries    int           `yaml:"download_retries"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
	ReferenceURLExpiry time.Duration `yaml:"reference_url_expiry"`
	Backend            string        `yaml:"backend"`  // remote or dlib
	Detector           string        `yaml:"detector"` // auto, fast or accurate
	ModelsDir          string        `yaml:"models_dir"`
	ModelLoadTimeout   time.Duration `yaml:"model_load_timeout"`
}

type CacheConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
}

type DatabaseConfig struct {
	URL          string // connection URL or DSN
	Driver       string // postgres (default) or mysql
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type StorageConfig struct {
	Driver   string // local (default) or azure
	LocalDir string // root directory for the local driver
	RootPath string // prefix for every object key
	Azure    AzureConfig
}

type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	RateLimit      int // verification requests per minute per IP
}

type LogConfig struct {
	Level  string
	Format string
}

type defaultsFile struct {
	Face  FaceConfig  `yaml:"face"`
	Cache CacheConfig `yaml:"cache"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envNonNegativeInt is envInt that also accepts zero.
func envNonNegativeInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a positive Go duration ("30m", "1h"), falling back to defaultVal.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var defaults defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	f := defaults.Face

	return &Config{
		Face: FaceConfig{
			Threshold:          envFloat("FACE_MATCH_THRESHOLD", f.Threshold),
			MaxImageSize:       envInt("FACE_MAX_IMAGE_SIZE", f.MaxImageSize),
			MaxPixels:          envInt("FACE_MAX_PIXELS", f.MaxPixels),
			MaxUploadBytes:     envInt("FACE_MAX_UPLOAD_BYTES", f.MaxUploadBytes),
			DownloadTimeout:    envDuration("FACE_DOWNLOAD_TIMEOUT", f.DownloadTimeout),
			DownloadRetries:    envNonNegativeInt("FACE_DOWNLOAD_RETRIES", f.DownloadRetries),
			RetryBackoff:       envDuration("FACE_RETRY_BACKOFF", f.RetryBackoff),
			ReferenceURLExpiry: envDuration("FACE_REFERENCE_URL_EXPIRY", f.ReferenceURLExpiry),
			Backend:            envString("FACE_BACKEND", f.Backend),
			Detector:           envString("FACE_DETECTOR", f.Detector),
			ModelsDir:          envString("FACE_MODELS_DIR", f.ModelsDir),
			ModelLoadTimeout:   envDuration("FACE_MODEL_LOAD_TIMEOUT", f.ModelLoadTimeout),
		},
		Cache: CacheConfig{
			Capacity: envInt("FACE_CACHE_CAPACITY", defaults.Cache.Capacity),
			TTL:      envDuration("FACE_CACHE_TTL", defaults.Cache.TTL),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			Driver:       envString("DATABASE_DRIVER", "postgres"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Storage: StorageConfig{
			Driver:   envString("STORAGE_DRIVER", "local"),
			LocalDir: envString("STORAGE_LOCAL_DIR", "./data/blobs"),
			RootPath: os.Getenv("STORAGE_ROOT_PATH"),
			Azure: AzureConfig{
				AccountName:   os.Getenv("AZURE_STORAGE_ACCOUNT_NAME"),
				AccountKey:    os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"),
				ContainerName: os.Getenv("AZURE_CONTAINER_NAME"),
			},
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: splitList(os.Getenv("WEB_ALLOWED_ORIGINS")),
			RateLimit:      envInt("WEB_RATE_LIMIT", 120),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
	}
}

// Validate reports configuration values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Face.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("face threshold must be positive, got %v", c.Face.Threshold))
	}
	if c.Face.MaxImageSize <= 0 {
		errs = append(errs, fmt.Errorf("max image size must be positive, got %d", c.Face.MaxImageSize))
	}
	if c.Face.MaxPixels <= 0 {
		errs = append(errs, fmt.Errorf("max pixels must be positive, got %d", c.Face.MaxPixels))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("cache capacity must be positive, got %d", c.Cache.Capacity))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache TTL must be positive, got %s", c.Cache.TTL))
	}
	switch c.Face.Backend {
	case "remote", "dlib":
	default:
		errs = append(errs, fmt.Errorf("unknown face backend %q (want remote or dlib)", c.Face.Backend))
	}
	switch c.Face.Detector {
	case "auto", "fast", "accurate":
	default:
		errs = append(errs, fmt.Errorf("unknown detector preference %q (want auto, fast or accurate)", c.Face.Detector))
	}
	switch c.Storage.Driver {
	case "local", "azure":
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q (want local or azure)", c.Storage.Driver))
	}
	return errors.Join(errs...)
}
