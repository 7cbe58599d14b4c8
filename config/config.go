// Package config loads console settings from config.json, .env and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"xhs_note_console/endpoint"
)

// Environment variables recognised on top of config.json.
const (
	EnvAPIURL     = "NOTES_API_URL"
	EnvServerSide = "NOTES_SERVER_SIDE"
	EnvLogLevel   = "NOTES_LOG_LEVEL"
	EnvServerAddr = "SERVER_ADDR"
)

// DefaultModel 与后端 AIService.default_model 保持一致。
const DefaultModel = "gpt-4o"

// DefaultCatalog 是后端支持的模型列表。
var DefaultCatalog = []string{
	"claude-3-5-sonnet-latest",
	"claude-sonnet-4-20250514",
	"gpt-4o",
	"deepseek-r1",
	"glm-4",
}

// Config holds everything the console needs at start-up.
type Config struct {
	// APIBaseURL is the explicit backend override; empty means "derive it".
	APIBaseURL string `json:"api_base_url,omitempty"`
	// ServerSide marks a process running inside the service network
	// (the equivalent of a server-side render).
	ServerSide bool `json:"server_side,omitempty"`
	// PublicHost / PublicProtocol describe the page the console is served from.
	PublicHost     string `json:"public_host,omitempty"`
	PublicProtocol string `json:"public_protocol,omitempty"`

	ServerAddr string        `json:"server_addr,omitempty"`
	LogLevel   string        `json:"log_level,omitempty"`
	Models     *ModelsConfig `json:"models,omitempty"`

	// GenerateTimeoutSeconds bounds one generate call; 0 disables the client timeout.
	GenerateTimeoutSeconds int `json:"generate_timeout_seconds,omitempty"`
}

// ModelsConfig 描述可选模型及默认模型。
type ModelsConfig struct {
	Default string   `json:"default,omitempty"`
	Catalog []string `json:"catalog,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		PublicHost:     "localhost",
		PublicProtocol: "http:",
		ServerAddr:     ":8080",
		LogLevel:       "info",
		Models: &ModelsConfig{
			Default: DefaultModel,
			Catalog: append([]string(nil), DefaultCatalog...),
		},
	}
}

// Load reads the JSON file at path (a missing file keeps the defaults), then
// applies .env and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		c.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerSide)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvServerSide, err)
		}
		c.ServerSide = b
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerAddr)); v != "" {
		c.ServerAddr = v
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.Models == nil {
		c.Models = &ModelsConfig{}
	}
	if c.Models.Default == "" {
		c.Models.Default = DefaultModel
	}
	if len(c.Models.Catalog) == 0 {
		c.Models.Catalog = append([]string(nil), DefaultCatalog...)
	}
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the model settings.
func (c Config) Validate() error {
	if c.Models == nil || c.Models.Default == "" {
		return errors.New("models.default is required")
	}
	found := false
	for _, m := range c.Models.Catalog {
		if m == c.Models.Default {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("models.default %q is not in models.catalog", c.Models.Default)
	}
	if c.GenerateTimeoutSeconds < 0 {
		return errors.New("generate_timeout_seconds must not be negative")
	}
	return nil
}

// EndpointContext is the explicit resolution input for endpoint.Resolve.
func (c Config) EndpointContext() endpoint.Context {
	return endpoint.Context{
		Override:   c.APIBaseURL,
		ServerSide: c.ServerSide,
		Hostname:   c.PublicHost,
		Protocol:   c.PublicProtocol,
	}
}

// GenerateTimeout returns the per-call timeout, zero meaning none.
func (c Config) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutSeconds) * time.Second
}
