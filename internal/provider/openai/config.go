package openai

import (
	"log/slog"
	"net/http"
	"time"
)

// Config configures one OpenAI-compatible chat-completions backend. Several
// providers in the fallback chain are usually this same client pointed at
// different base URLs and models.
type Config struct {
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

// Name identifies this provider in cache keys, fallback errors, and logs.
func (c *Client) Name() string {
	return c.cfg.Name
}
