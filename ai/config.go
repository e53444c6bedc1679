// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"errors"
	"strings"
)

// Config holds configuration for the embedding and profiling services.
type Config struct {
	// EmbeddingHost is the base URL of an OpenAI-compatible embeddings API.
	// Example: "http://localhost:11434/v1"
	EmbeddingHost string

	// ProfilerHost is the base URL of an OpenAI-compatible chat API used for
	// semantic profiling.
	ProfilerHost string

	// EmbeddingModel is the model identifier used for chunk embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// ProfilerModel is the chat model used to summarize documents.
	// Example: "qwen2.5:3b", "gpt-4o-mini"
	ProfilerModel string

	// APIKey is sent as the bearer token. Local servers accept any value.
	APIKey string

	// MaxTopics caps the number of topics kept from a profile.
	// Default: 8
	MaxTopics int

	// MaxProfileInput is the number of characters of document text sent to
	// the profiler. Longer documents are truncated.
	// Default: 12000
	MaxProfileInput int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithProfilerHost sets the profiling service host URL.
func WithProfilerHost(host string) ConfigOption {
	return func(c *Config) {
		c.ProfilerHost = host
	}
}

// WithHost sets both hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.ProfilerHost = host
	}
}

func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

func WithProfilerModel(model string) ConfigOption {
	return func(c *Config) {
		c.ProfilerModel = model
	}
}

func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithMaxTopics sets the topic cap for profiles.
func WithMaxTopics(n int) ConfigOption {
	return func(c *Config) {
		c.MaxTopics = n
	}
}

// WithMaxProfileInput sets how much document text the profiler sees.
func WithMaxProfileInput(n int) ConfigOption {
	return func(c *Config) {
		c.MaxProfileInput = n
	}
}

// DefaultConfig returns a Config for local OpenAI-compatible services.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:   defaultHost,
		ProfilerHost:    defaultHost,
		EmbeddingModel:  "embeddinggemma",
		ProfilerModel:   "qwen2.5:3b",
		APIKey:          "none",
		MaxTopics:       8,
		MaxProfileInput: 12000,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingHost("http://localhost:11434/v1"),
//	    WithProfilerHost("http://localhost:9100/v1"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize puts hosts in canonical form. OpenAI-compatible servers (Ollama,
// LocalAI, vLLM) expect the /v1 suffix.
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.ProfilerHost = normalizeHost(c.ProfilerHost)
	if c.APIKey == "" {
		c.APIKey = "none"
	}
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate normalizes the configuration and checks that it is complete.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.ProfilerHost == "" {
		return errors.New("ai config: ProfilerHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.ProfilerModel == "" {
		return errors.New("ai config: ProfilerModel is required")
	}
	if c.MaxTopics < 1 || c.MaxTopics > 50 {
		return errors.New("ai config: MaxTopics must be between 1 and 50")
	}
	if c.MaxProfileInput < 256 {
		return errors.New("ai config: MaxProfileInput must be at least 256")
	}
	return nil
}
