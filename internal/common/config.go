package common

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Dataset DatasetConfig `yaml:"dataset"`
	Render  RenderConfig  `yaml:"rendering"`
	Extract ExtractConfig `yaml:"extraction"`
	Service ServiceConfig `yaml:"service"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DatasetConfig holds discovery, partitioning and export configuration
type DatasetConfig struct {
	WorkDir           string   `yaml:"work_dir"`
	PDFRoots          []string `yaml:"raw_pdf_roots"`
	AnnotationsDir    string   `yaml:"annotations_dir"`
	OutputDir         string   `yaml:"output_dir"`
	TrainRatio        float64  `yaml:"train_split"`
	ValRatio          float64  `yaml:"val_split"`
	TestRatio         float64  `yaml:"test_split"`
	MinAnnotations    int      `yaml:"min_annotations_per_doc"`
	Seed              string   `yaml:"seed"`
	SmallSetThreshold int      `yaml:"small_set_threshold"`
	ClampBoxes        bool     `yaml:"clamp_boxes"`
}

// RenderConfig holds page rasterization configuration
type RenderConfig struct {
	DPI      int    `yaml:"dpi"`
	MaxPages int    `yaml:"max_pages_per_doc"` // -1 = unlimited
	Pdftoppm string `yaml:"pdftoppm"`
	CacheDir string `yaml:"cache_dir"`
	Workers  int    `yaml:"workers"`
}

// ExtractConfig holds extraction engine configuration
type ExtractConfig struct {
	OutputDir          string        `yaml:"output_dir"`
	CheckpointInterval int           `yaml:"checkpoint_interval"`
	RateLimitDelay     time.Duration `yaml:"rate_limit_delay"`
	MaxRetries         int           `yaml:"max_retries"`
	BaseDelay          time.Duration `yaml:"base_delay"`
	BackoffMultiplier  float64       `yaml:"backoff_multiplier"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	MaxInFlight        int           `yaml:"max_in_flight"`
	Workers            int           `yaml:"workers"`
	CallTimeout        time.Duration `yaml:"call_timeout"`
	RelevanceThreshold int           `yaml:"relevance_threshold"`
	MaxTextPages       int           `yaml:"max_text_pages"`
	MaxDocuments       int           `yaml:"max_documents"`
	ForceReprocess     bool          `yaml:"force_reprocess"`
}

// ServiceConfig holds the external OCR/AI service configuration
type ServiceConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Dataset      string        `yaml:"dataset"`
	PollInterval time.Duration `yaml:"poll_interval"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
}

// StoreConfig holds checkpoint and response store configuration
type StoreConfig struct {
	CheckpointBackend string `yaml:"checkpoint_backend"` // "file" | "redis"
	CheckpointDir     string `yaml:"checkpoint_dir"`
	RedisAddr         string `yaml:"redis_addr"`
	RedisKeyPrefix    string `yaml:"redis_key_prefix"`
	ResponsesDSN      string `yaml:"responses_dsn"` // empty = files; "postgres://..." or a sqlite path
	ResponsesDir      string `yaml:"responses_dir"`
}

// MetricsConfig holds the optional Prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Dataset: DatasetConfig{
			WorkDir:           "./work",
			TrainRatio:        0.7,
			ValRatio:          0.2,
			TestRatio:         0.1,
			MinAnnotations:    1,
			Seed:              "42",
			SmallSetThreshold: 30,
		},
		Render: RenderConfig{
			DPI:      300,
			MaxPages: -1,
			Pdftoppm: "pdftoppm",
			Workers:  4,
		},
		Extract: ExtractConfig{
			CheckpointInterval: 3,
			RateLimitDelay:     time.Second,
			MaxRetries:         3,
			BaseDelay:          2 * time.Second,
			BackoffMultiplier:  2,
			MaxDelay:           30 * time.Second,
			MaxInFlight:        2,
			Workers:            2,
			CallTimeout:        4 * time.Minute, // covers one request plus job polling
			RelevanceThreshold: 2,
			MaxTextPages:       40,
		},
		Service: ServiceConfig{
			BaseURL:      "https://app.docupipe.ai",
			Dataset:      "utility_extraction",
			PollInterval: 5 * time.Second,
			JobTimeout:   3 * time.Minute,
		},
		Store: StoreConfig{
			CheckpointBackend: "file",
			RedisKeyPrefix:    "plansets",
		},
	}
}

// LoadConfig loads configuration from defaults and environment variables
func LoadConfig() *Config {
	cfg := DefaultConfig()
	applyEnv(cfg)
	cfg.ResolvePaths()
	return cfg
}

// Load reads defaults, overlays the YAML file at path (if any), then the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "parse config file "+path, err)
		}
	}
	applyEnv(cfg)
	cfg.ResolvePaths()
	return cfg, nil
}

func applyEnv(c *Config) {
	c.Dataset.WorkDir = getEnv("PLANSETS_WORK_DIR", c.Dataset.WorkDir)
	c.Dataset.PDFRoots = getEnvAsList("PLANSETS_PDF_ROOTS", c.Dataset.PDFRoots)
	c.Dataset.AnnotationsDir = getEnv("PLANSETS_ANNOTATIONS_DIR", c.Dataset.AnnotationsDir)
	c.Dataset.OutputDir = getEnv("PLANSETS_DATASET_DIR", c.Dataset.OutputDir)
	c.Dataset.TrainRatio = getEnvAsFloat("PLANSETS_TRAIN_SPLIT", c.Dataset.TrainRatio)
	c.Dataset.ValRatio = getEnvAsFloat("PLANSETS_VAL_SPLIT", c.Dataset.ValRatio)
	c.Dataset.TestRatio = getEnvAsFloat("PLANSETS_TEST_SPLIT", c.Dataset.TestRatio)
	c.Dataset.MinAnnotations = getEnvAsInt("PLANSETS_MIN_ANNOTATIONS", c.Dataset.MinAnnotations)
	c.Dataset.Seed = getEnv("PLANSETS_SEED", c.Dataset.Seed)
	c.Dataset.ClampBoxes = getEnvAsBool("PLANSETS_CLAMP_BOXES", c.Dataset.ClampBoxes)

	c.Render.DPI = getEnvAsInt("PLANSETS_DPI", c.Render.DPI)
	c.Render.MaxPages = getEnvAsInt("PLANSETS_MAX_PAGES", c.Render.MaxPages)
	c.Render.Pdftoppm = getEnv("PLANSETS_PDFTOPPM", c.Render.Pdftoppm)
	c.Render.CacheDir = getEnv("PLANSETS_CACHE_DIR", c.Render.CacheDir)

	c.Extract.OutputDir = getEnv("PLANSETS_EXTRACT_DIR", c.Extract.OutputDir)
	c.Extract.CheckpointInterval = getEnvAsInt("PLANSETS_CHECKPOINT_INTERVAL", c.Extract.CheckpointInterval)
	c.Extract.RateLimitDelay = getEnvAsDuration("PLANSETS_RATE_LIMIT_DELAY", c.Extract.RateLimitDelay)
	c.Extract.MaxRetries = getEnvAsInt("PLANSETS_MAX_RETRIES", c.Extract.MaxRetries)
	c.Extract.MaxInFlight = getEnvAsInt("PLANSETS_MAX_IN_FLIGHT", c.Extract.MaxInFlight)
	c.Extract.CallTimeout = getEnvAsDuration("PLANSETS_CALL_TIMEOUT", c.Extract.CallTimeout)

	c.Service.BaseURL = getEnv("DOCUPIPE_BASE_URL", c.Service.BaseURL)
	c.Service.APIKey = getEnv("DOCUPIPE_API_KEY", c.Service.APIKey)

	c.Store.CheckpointBackend = getEnv("PLANSETS_CHECKPOINT_BACKEND", c.Store.CheckpointBackend)
	c.Store.RedisAddr = getEnv("REDIS_ADDR", c.Store.RedisAddr)
	c.Store.ResponsesDSN = getEnv("PLANSETS_RESPONSES_DSN", c.Store.ResponsesDSN)

	c.Metrics.Addr = getEnv("PLANSETS_METRICS_ADDR", c.Metrics.Addr)
}

// ResolvePaths fills unset directories relative to the work directory.
func (c *Config) ResolvePaths() {
	wd := c.Dataset.WorkDir
	if c.Dataset.AnnotationsDir == "" {
		c.Dataset.AnnotationsDir = filepath.Join(wd, "annotations")
	}
	if c.Dataset.OutputDir == "" {
		c.Dataset.OutputDir = filepath.Join(wd, "yolo")
	}
	if c.Render.CacheDir == "" {
		c.Render.CacheDir = filepath.Join(wd, "images")
	}
	if c.Extract.OutputDir == "" {
		c.Extract.OutputDir = filepath.Join(wd, "extraction")
	}
	if c.Store.CheckpointDir == "" {
		c.Store.CheckpointDir = filepath.Join(c.Extract.OutputDir, "checkpoints")
	}
	if c.Store.ResponsesDir == "" {
		c.Store.ResponsesDir = filepath.Join(c.Extract.OutputDir, "responses")
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RatioEpsilon is the tolerance applied when checking that split ratios sum to one.
const RatioEpsilon = 1e-6

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if len(c.Dataset.PDFRoots) == 0 {
		return NewAppError("CONFIG_ERROR", "at least one PDF source root is required", ErrInvalidInput)
	}
	if err := ValidateRatios(c.Dataset.TrainRatio, c.Dataset.ValRatio, c.Dataset.TestRatio); err != nil {
		return NewAppError("CONFIG_ERROR", err.Error(), ErrInvalidInput)
	}
	if c.Dataset.MinAnnotations < 0 {
		return NewAppError("CONFIG_ERROR", "min_annotations_per_doc must be >= 0", ErrInvalidInput)
	}
	if c.Render.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "dpi must be > 0", ErrInvalidInput)
	}
	if c.Render.MaxPages == 0 || c.Render.MaxPages < -1 {
		return NewAppError("CONFIG_ERROR", "max_pages_per_doc must be -1 or > 0", ErrInvalidInput)
	}
	if c.Extract.CheckpointInterval < 1 {
		return NewAppError("CONFIG_ERROR", "checkpoint_interval must be >= 1", ErrInvalidInput)
	}
	if c.Extract.MaxRetries < 1 {
		return NewAppError("CONFIG_ERROR", "max_retries must be >= 1", ErrInvalidInput)
	}
	if c.Extract.MaxInFlight < 1 {
		return NewAppError("CONFIG_ERROR", "max_in_flight must be >= 1", ErrInvalidInput)
	}
	if c.Extract.RateLimitDelay < 0 || c.Extract.BaseDelay < 0 {
		return NewAppError("CONFIG_ERROR", "delays must not be negative", ErrInvalidInput)
	}
	switch c.Store.CheckpointBackend {
	case "file", "":
	case "redis":
		if c.Store.RedisAddr == "" {
			return NewAppError("CONFIG_ERROR", "REDIS_ADDR is required for the redis checkpoint backend", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "unknown checkpoint backend "+c.Store.CheckpointBackend, ErrInvalidInput)
	}
	return nil
}

// ValidateRatios checks train/val/test ratios are non-negative and sum to one.
func ValidateRatios(train, val, test float64) error {
	if train < 0 || val < 0 || test < 0 {
		return fmt.Errorf("split ratios must not be negative (train=%g val=%g test=%g)", train, val, test)
	}
	if sum := train + val + test; math.Abs(sum-1) > RatioEpsilon {
		return fmt.Errorf("split ratios must sum to 1, got %g", sum)
	}
	return nil
}
