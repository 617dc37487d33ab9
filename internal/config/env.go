package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendS3     = "s3"
	BackendMemory = "memory"
)

type Config struct {
	// object store
	StorageBackend     string
	MinioAddress       string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioRegion        string
	MinioUseHTTPS      bool
	MinioCreateBuckets bool

	PDFBucket    string
	ImagesBucket string

	// local scratch space for uploads and materialized objects
	TempRoot string

	OCRTimeout   time.Duration
	OCRLanguages []string

	RasterScale       float64
	JPEGQuality       int
	UploadConcurrency int

	Port           string
	LogLevel       string
	MaxUploadBytes int64
	PublicDir      string
	CORSOrigins    []string
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() (*Config, error) {

	_ = godotenv.Load()

	cfg := &Config{
		StorageBackend:     strings.ToLower(getEnv("STORAGE_BACKEND", BackendS3)),
		MinioAddress:       getEnv("MINIO_ADDRESS", ""),
		MinioAccessKey:     getEnv("MINIO_ROOT_USER", ""),
		MinioSecretKey:     getEnv("MINIO_ROOT_PASSWORD", ""),
		MinioRegion:        getEnv("MINIO_REGION", "us-east-1"),
		PDFBucket:          getEnv("PDF_BUCKET", "pdf"),
		ImagesBucket:       getEnv("IMAGES_BUCKET", "images"),
		TempRoot:           getEnv("TEMP_ROOT", filepath.Join(os.TempDir(), "pdfmirror")),
		OCRLanguages:       splitList(getEnv("OCR_LANGUAGES", "eng")),
		Port:               getEnv("PORT", "8000"),
		LogLevel:           strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		PublicDir:          getEnv("PUBLIC_DIR", "./public"),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
	}

	var err error
	if cfg.UploadConcurrency, err = getEnvInt("UPLOAD_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.JPEGQuality, err = getEnvInt("JPEG_QUALITY", 95); err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes, err = getEnvInt64("MAX_UPLOAD_BYTES", 100<<20); err != nil {
		return nil, err
	}
	if cfg.MinioUseHTTPS, err = getEnvBool("MINIO_USE_HTTPS", false); err != nil {
		return nil, err
	}
	if cfg.MinioCreateBuckets, err = getEnvBool("MINIO_SHOULD_CREATE_BUCKET", true); err != nil {
		return nil, err
	}
	if cfg.OCRTimeout, err = getEnvDuration("OCR_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RasterScale, err = getEnvFloat("RASTER_SCALE", 5); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing or out of range setting.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendS3:
		if c.MinioAddress == "" {
			return fmt.Errorf("MINIO_ADDRESS not set")
		}
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return fmt.Errorf("MINIO_ROOT_USER / MINIO_ROOT_PASSWORD not set")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.PDFBucket == "" || c.ImagesBucket == "" {
		return fmt.Errorf("PDF_BUCKET and IMAGES_BUCKET must be non-empty")
	}
	if c.PDFBucket == c.ImagesBucket {
		return fmt.Errorf("PDF_BUCKET and IMAGES_BUCKET must differ")
	}
	if c.TempRoot == "" {
		return fmt.Errorf("TEMP_ROOT not set")
	}
	if c.RasterScale <= 0 {
		return fmt.Errorf("RASTER_SCALE must be positive, got %v", c.RasterScale)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be in [1,100], got %d", c.JPEGQuality)
	}
	if c.OCRTimeout <= 0 {
		return fmt.Errorf("OCR_TIMEOUT must be positive")
	}
	if c.UploadConcurrency < 1 {
		c.UploadConcurrency = 1
	}
	return nil
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not an integer", key, v)
	}
	return n, nil
}

func getEnvInt64(key string, def int64) (int64, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not an integer", key, v)
	}
	return n, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a boolean", key, v)
	}
	return b, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a number", key, v)
	}
	return f, nil
}

// getEnvDuration accepts Go durations ("15s") or bare seconds ("15").
func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a duration", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
