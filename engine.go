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


// Package docflow wires storage, queueing, ingestion, workers and the
// scheduler into a single Engine for single-node deployments.
package docflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/ai/openai"
	"github.com/poiesic/docflow/config"
	"github.com/poiesic/docflow/documents"
	"github.com/poiesic/docflow/extract"
	"github.com/poiesic/docflow/ingestion"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/queue/memory"
	"github.com/poiesic/docflow/queue/redis"
	"github.com/poiesic/docflow/scheduler"
	"github.com/poiesic/docflow/storage/badger"
	"github.com/poiesic/docflow/worker"
	"github.com/poiesic/docflow/workload"
)

type Engine struct {
	cfg       *config.Config
	stores    *badger.Stores
	backend   queue.Backend
	provider  ai.AIProvider
	extractor extract.TextExtractor
	runner    worker.ExperienceRunner
	plugins   *worker.PluginRegistry
	router    *workload.Router
	docs      *documents.Service
	ingest    *ingestion.Service
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger    *slog.Logger
	provider  ai.AIProvider
	backend   queue.Backend
	extractor extract.TextExtractor
	runner    worker.ExperienceRunner
	plugins   []worker.FeedPlugin
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithProvider replaces the OpenAI-compatible provider built from config.
func WithProvider(provider ai.AIProvider) EngineOption {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithBackend replaces the queue backend selected by config.
func WithBackend(backend queue.Backend) EngineOption {
	return func(o *engineOptions) {
		o.backend = backend
	}
}

// WithExtractor replaces the default text extractor.
func WithExtractor(extractor extract.TextExtractor) EngineOption {
	return func(o *engineOptions) {
		o.extractor = extractor
	}
}

// WithExperienceRunner enables experience execution jobs.
func WithExperienceRunner(runner worker.ExperienceRunner) EngineOption {
	return func(o *engineOptions) {
		o.runner = runner
	}
}

// WithPlugins registers feed plugins.
func WithPlugins(plugins ...worker.FeedPlugin) EngineOption {
	return func(o *engineOptions) {
		o.plugins = append(o.plugins, plugins...)
	}
}

// NewEngine opens storage and builds every service described by cfg.
func NewEngine(ctx context.Context, cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &engineOptions{}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := badger.OpenBackendWithLogger(cfg.Storage.Path, cfg.Storage.InMemory, logger)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:       cfg,
		stores:    badger.NewStores(store, cfg.Staging.TTL),
		backend:   options.backend,
		provider:  options.provider,
		extractor: options.extractor,
		runner:    options.runner,
		plugins:   worker.NewPluginRegistry(options.plugins...),
		router:    workload.Default(),
		logger:    logger.With("component", "engine"),
	}

	if e.backend == nil {
		if e.backend, err = openQueue(ctx, cfg, store, logger); err != nil {
			e.Close()
			return nil, err
		}
	}
	if e.provider == nil {
		if e.provider, err = openai.NewProvider(cfg.AIConfig()); err != nil {
			e.Close()
			return nil, err
		}
	}
	if e.extractor == nil {
		if e.extractor, err = extract.New(extract.WithLogger(logger)); err != nil {
			e.Close()
			return nil, err
		}
	}

	e.docs, err = documents.NewService(e.stores.Documents, e.stores.Chunks, e.provider.Embedder(),
		documents.WithLogger(logger))
	if err != nil {
		e.Close()
		return nil, err
	}
	e.ingest, err = ingestion.NewService(e.stores.KnowledgeBases, e.docs, e.stores.Staging, e.backend,
		ingestion.WithLogger(logger),
		ingestion.WithRouter(e.router),
		ingestion.WithProfiling(cfg.Profiling.Enabled))
	if err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func openQueue(ctx context.Context, cfg *config.Config, store *badger.Backend, logger *slog.Logger) (queue.Backend, error) {
	switch cfg.Queue.Backend {
	case config.QueueMemory:
		return memory.New(memory.WithLogger(logger)), nil
	case config.QueueBadger:
		return badger.NewQueue(store, badger.WithQueueLogger(logger))
	case config.QueueRedis:
		r := cfg.Queue.Redis
		return redis.Dial(ctx, r.Addr, r.Password, r.DB,
			redis.WithPrefix(r.Prefix),
			redis.WithLogger(logger))
	}
	return nil, fmt.Errorf("%w: unknown queue backend %q", config.ErrInvalidConfig, cfg.Queue.Backend)
}

// Close releases the queue, the AI provider and storage, in that order.
func (e *Engine) Close() error {
	var errs []error
	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			e.logger.Error("error closing queue backend", "err", err)
			errs = append(errs, err)
		}
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if err := e.stores.Close(); err != nil {
		e.logger.Error("error closing storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) Stores() *badger.Stores {
	return e.stores
}

func (e *Engine) Backend() queue.Backend {
	return e.backend
}

func (e *Engine) Documents() *documents.Service {
	return e.docs
}

func (e *Engine) Ingestion() *ingestion.Service {
	return e.ingest
}

func (e *Engine) Router() *workload.Router {
	return e.router
}

func (e *Engine) Plugins() *worker.PluginRegistry {
	return e.plugins
}

// NewWorker builds a Worker with a handler for every configured stage.
// Experience jobs are handled only when a runner was supplied.
func (e *Engine) NewWorker(opts ...worker.Option) (*worker.Worker, error) {
	deps := worker.Deps{
		KnowledgeBases: e.stores.KnowledgeBases,
		Documents:      e.docs,
		Staging:        e.stores.Staging,
		Backend:        e.backend,
		Router:         e.router,
		Logger:         e.logger,
		Profiling:      e.cfg.Profiling.Enabled,
	}
	base := []worker.Option{
		worker.WithLogger(e.logger),
		worker.WithRouter(e.router),
		worker.WithConcurrency(e.cfg.Worker.Concurrency),
		worker.WithPollTimeout(e.cfg.Worker.PollTimeout),
		worker.WithHandler(workload.KindOCR, worker.NewOCRHandler(deps, e.extractor)),
		worker.WithHandler(workload.KindEmbed, worker.NewEmbedHandler(deps)),
		worker.WithHandler(workload.KindProfiling, worker.NewProfileHandler(deps, e.provider.Profiler())),
		worker.WithHandler(workload.KindFeedExecution,
			worker.NewFeedHandler(e.stores.Feeds, e.ingest, e.plugins, e.logger)),
	}
	if len(e.cfg.Worker.Queues) > 0 {
		base = append(base, worker.WithQueues(e.cfg.Worker.Queues...))
	}
	if e.runner != nil {
		base = append(base, worker.WithHandler(workload.KindExperienceExecution,
			worker.NewExperienceHandler(e.stores.Experiences, e.stores.Users, e.runner, e.logger)))
	}
	return worker.New(e.backend, append(base, opts...)...)
}

// NewScheduler builds a Driver over feeds, experiences and attachment cleanup.
func (e *Engine) NewScheduler(opts ...scheduler.Option) (*scheduler.Driver, error) {
	srcOpts := []scheduler.SourceOption{
		scheduler.WithSourceRouter(e.router),
		scheduler.WithSourceLogger(e.logger),
	}
	sources := []scheduler.Source{
		scheduler.NewFeedSource(e.stores.Feeds, e.backend, srcOpts...),
		scheduler.NewExperienceSource(e.stores.Experiences, e.stores.Users, e.backend, srcOpts...),
		scheduler.NewAttachmentCleanupSource(e.stores.Attachments, e.stores.Staging, srcOpts...),
	}
	base := []scheduler.Option{
		scheduler.WithLogger(e.logger),
		scheduler.WithInterval(e.cfg.Scheduler.Interval),
		scheduler.WithLimit(e.cfg.Scheduler.Limit),
	}
	return scheduler.NewDriver(sources, append(base, opts...)...)
}

// Run starts a worker and the scheduler and blocks until ctx is done and
// both have stopped.
func (e *Engine) Run(ctx context.Context) error {
	w, err := e.NewWorker()
	if err != nil {
		return err
	}
	defer w.Release()
	driver, err := e.NewScheduler()
	if err != nil {
		return err
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, run := range []func(context.Context) error{w.Run, driver.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
