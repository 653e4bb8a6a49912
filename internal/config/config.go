// Package config loads gateway configuration from environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 18080
)

// Config is the immutable, process-wide configuration. It is read once at
// startup; nothing in the translation core mutates it.
type Config struct {
	OpenAIAPIKey       string            `json:"-"`
	OpenAIBaseURL      string            `json:"openaiBaseUrl"`
	OpenAIDefaultModel string            `json:"openaiDefaultModel"`
	ModelMap           map[string]string `json:"modelMap,omitempty"`
	Host               string            `json:"host"`
	Port               int               `json:"port"`
}

// Load reads configuration from the environment. Missing OPENAI_API_KEY is
// not itself an error here — the handler surfaces it as an authentication_error
// at request time, matching the teacher's own "read everything, validate at
// the point of use" style in internal/config.
func Load() (*Config, error) {
	cfg := &Config{
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      DefaultOpenAIBaseURL,
		OpenAIDefaultModel: os.Getenv("OPENAI_DEFAULT_MODEL"),
		Host:               DefaultHost,
		Port:               DefaultPort,
	}

	if base := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); base != "" {
		cfg.OpenAIBaseURL = base
	}

	if raw := os.Getenv("MODEL_MAP_JSON"); raw != "" {
		m, err := ParseModelMapJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("parse MODEL_MAP_JSON: %w", err)
		}
		cfg.ModelMap = m
	}

	if host := strings.TrimSpace(os.Getenv("GATEWAY_HOST")); host != "" {
		cfg.Host = host
	}
	if port := strings.TrimSpace(os.Getenv("GATEWAY_PORT")); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			cfg.Port = p
		}
	}

	return cfg, nil
}

// ParseModelMapJSON accepts either a flat {"name": "name"} object or a
// {"models": {...}} wrapped object, per §4.A / §6.4 of the model map contract.
func ParseModelMapJSON(raw string) (map[string]string, error) {
	var wrapped struct {
		Models map[string]string `json:"models"`
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&wrapped); err == nil && wrapped.Models != nil {
		return wrapped.Models, nil
	}

	var flat map[string]string
	if err := json.Unmarshal([]byte(raw), &flat); err != nil {
		return nil, err
	}
	return flat, nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
