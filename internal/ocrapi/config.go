package ocrapi

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joseph-ayodele/plansets/internal/common"
)

// Config for the OCR/AI service client.
type Config struct {
	APIKey       string        // if empty, falls back to env DOCUPIPE_API_KEY
	BaseURL      string        // default https://app.docupipe.ai
	Dataset      string        // dataset label attached to uploads
	PollInterval time.Duration // job status polling period
	JobTimeout   time.Duration // bound on waiting for one job
	Timeout      time.Duration // http client timeout per request
}

// ConfigFromService maps the service section of the application config.
func ConfigFromService(s common.ServiceConfig) Config {
	return Config{
		APIKey:       s.APIKey,
		BaseURL:      s.BaseURL,
		Dataset:      s.Dataset,
		PollInterval: s.PollInterval,
		JobTimeout:   s.JobTimeout,
	}
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("DOCUPIPE_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://app.docupipe.ai"
	}
	if cfg.Dataset == "" {
		cfg.Dataset = "utility_extraction"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 3 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Configured reports whether an API key is available.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}
