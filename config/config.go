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


// Package config loads process configuration and sets up logging.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DOCFLOW_QUEUE_BACKEND.
const EnvPrefix = "DOCFLOW"

// Queue backends.
const (
	QueueMemory = "memory"
	QueueBadger = "badger"
	QueueRedis  = "redis"
)

var (
	// ErrInvalidConfig is wrapped by every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

type Config struct {
	Storage   StorageConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Scheduler SchedulerConfig
	Staging   StagingConfig
	Profiling ProfilingConfig
	AI        AIConfig
	Log       LogConfig
}

type StorageConfig struct {
	Path     string
	InMemory bool
}

type QueueConfig struct {
	Backend string
	Redis   RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type WorkerConfig struct {
	Concurrency int
	PollTimeout time.Duration
	Queues      []string // Empty means every routed queue
}

type SchedulerConfig struct {
	Interval time.Duration
	Limit    int
}

type StagingConfig struct {
	TTL time.Duration
}

type ProfilingConfig struct {
	Enabled bool
}

type AIConfig struct {
	EmbeddingHost  string
	EmbeddingModel string
	ProfilerHost   string
	ProfilerModel  string
	APIKey         string
}

type LogConfig struct {
	Level string
	File  string
}

func setDefaults(v *viper.Viper) {
	defaults := ai.DefaultConfig()

	v.SetDefault("storage.path", "./docflow-data")
	v.SetDefault("storage.in_memory", false)
	v.SetDefault("queue.backend", QueueBadger)
	v.SetDefault("queue.redis.addr", "localhost:6379")
	v.SetDefault("queue.redis.password", "")
	v.SetDefault("queue.redis.db", 0)
	v.SetDefault("queue.redis.prefix", "docflow")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.poll_timeout", "2s")
	v.SetDefault("worker.queues", []string{})
	v.SetDefault("scheduler.interval", "30s")
	v.SetDefault("scheduler.limit", 100)
	v.SetDefault("staging.ttl", "24h")
	v.SetDefault("profiling.enabled", true)
	v.SetDefault("ai.embedding_host", defaults.EmbeddingHost)
	v.SetDefault("ai.embedding_model", defaults.EmbeddingModel)
	v.SetDefault("ai.profiler_host", defaults.ProfilerHost)
	v.SetDefault("ai.profiler_model", defaults.ProfilerModel)
	v.SetDefault("ai.api_key", defaults.APIKey)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load reads defaults, then the YAML file at path when path is not empty,
// then DOCFLOW_ environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Storage: StorageConfig{
			Path:     v.GetString("storage.path"),
			InMemory: v.GetBool("storage.in_memory"),
		},
		Queue: QueueConfig{
			Backend: strings.ToLower(v.GetString("queue.backend")),
			Redis: RedisConfig{
				Addr:     v.GetString("queue.redis.addr"),
				Password: v.GetString("queue.redis.password"),
				DB:       v.GetInt("queue.redis.db"),
				Prefix:   v.GetString("queue.redis.prefix"),
			},
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
			PollTimeout: v.GetDuration("worker.poll_timeout"),
			Queues:      v.GetStringSlice("worker.queues"),
		},
		Scheduler: SchedulerConfig{
			Interval: v.GetDuration("scheduler.interval"),
			Limit:    v.GetInt("scheduler.limit"),
		},
		Staging: StagingConfig{
			TTL: v.GetDuration("staging.ttl"),
		},
		Profiling: ProfilingConfig{
			Enabled: v.GetBool("profiling.enabled"),
		},
		AI: AIConfig{
			EmbeddingHost:  v.GetString("ai.embedding_host"),
			EmbeddingModel: v.GetString("ai.embedding_model"),
			ProfilerHost:   v.GetString("ai.profiler_host"),
			ProfilerModel:  v.GetString("ai.profiler_model"),
			APIKey:         v.GetString("ai.api_key"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("%w: storage.path is required unless storage.in_memory is set", ErrInvalidConfig)
	}
	switch c.Queue.Backend {
	case QueueMemory, QueueBadger:
	case QueueRedis:
		if c.Queue.Redis.Addr == "" {
			return fmt.Errorf("%w: queue.redis.addr is required for the redis backend", ErrInvalidConfig)
		}
		if c.Queue.Redis.DB < 0 {
			return fmt.Errorf("%w: queue.redis.db must not be negative", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown queue.backend %q", ErrInvalidConfig, c.Queue.Backend)
	}
	if c.Worker.Concurrency < 1 || c.Worker.Concurrency > 256 {
		return fmt.Errorf("%w: worker.concurrency must be between 1 and 256, got %d", ErrInvalidConfig, c.Worker.Concurrency)
	}
	if c.Worker.PollTimeout <= 0 {
		return fmt.Errorf("%w: worker.poll_timeout must be positive", ErrInvalidConfig)
	}
	if c.Scheduler.Interval < time.Second {
		return fmt.Errorf("%w: scheduler.interval must be at least 1s, got %s", ErrInvalidConfig, c.Scheduler.Interval)
	}
	if c.Scheduler.Limit < 1 {
		return fmt.Errorf("%w: scheduler.limit must be at least 1", ErrInvalidConfig)
	}
	if c.Staging.TTL < time.Minute {
		return fmt.Errorf("%w: staging.ttl must be at least 1m, got %s", ErrInvalidConfig, c.Staging.TTL)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.AIConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// AIConfig converts the ai section into a normalized ai.Config.
func (c *Config) AIConfig() *ai.Config {
	cfg := ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithProfilerHost(c.AI.ProfilerHost),
		ai.WithProfilerModel(c.AI.ProfilerModel),
		ai.WithAPIKey(c.AI.APIKey),
	)
	cfg.Normalize()
	return cfg
}
