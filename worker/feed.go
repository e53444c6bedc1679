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


package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/ingestion"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/workload"
)

// FeedItem is one document produced by a feed plugin.
type FeedItem struct {
	SourceID   string
	Title      string
	Filename   string
	MimeType   string
	Content    string // Plain text; ignored when Data is set
	Data       []byte // Raw bytes that need extraction
	SourceHash string
	Metadata   map[string]string
}

// FeedPlugin fetches items for a feed execution.
type FeedPlugin interface {
	Name() string
	Fetch(ctx context.Context, feed *core.Feed, params map[string]any) ([]FeedItem, error)
}

// PluginRegistry maps plugin names to implementations. It is safe for
// concurrent use.
type PluginRegistry struct {
	mu      sync.RWMutex
	plugins map[string]FeedPlugin
}

func NewPluginRegistry(plugins ...FeedPlugin) *PluginRegistry {
	r := &PluginRegistry{plugins: make(map[string]FeedPlugin, len(plugins))}
	for _, p := range plugins {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the plugin under p.Name().
func (r *PluginRegistry) Register(p FeedPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.Name()] = p
}

// Lookup returns ErrUnknownPlugin when name is not registered.
func (r *PluginRegistry) Lookup(name string) (FeedPlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	return p, nil
}

// Names returns the registered plugin names, sorted.
func (r *PluginRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// FeedHandler runs a feed plugin and ingests what it returns.
type FeedHandler struct {
	feeds    storage.FeedRepository
	ingest   *ingestion.Service
	registry *PluginRegistry
	logger   *slog.Logger
	now      func() time.Time
}

var _ Handler = (*FeedHandler)(nil)

func NewFeedHandler(feeds storage.FeedRepository, ingest *ingestion.Service, registry *PluginRegistry, logger *slog.Logger) *FeedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedHandler{
		feeds:    feeds,
		ingest:   ingest,
		registry: registry,
		logger:   logger.With("component", "worker", "handler", "feed"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *FeedHandler) Handle(ctx context.Context, job *queue.Job) (Result, error) {
	p, err := workload.ParseFeed(job.Payload)
	if err != nil {
		return Result{}, err
	}
	logger := h.logger.With("job_id", job.ID, "feed_id", p.ScheduleID, "execution_id", p.ExecutionID)

	exec, err := h.feeds.GetFeedExecution(ctx, p.ExecutionID)
	if errors.Is(err, storage.ErrNotFound) {
		return Cancelled("execution deleted"), nil
	}
	if err != nil {
		return Result{}, err
	}
	if !exec.Status.IsActive() {
		// A stale sweep or an earlier delivery already settled it.
		return Cancelled("execution already " + string(exec.Status)), nil
	}

	feed, err := h.feeds.GetFeed(ctx, p.ScheduleID)
	if errors.Is(err, storage.ErrNotFound) {
		return h.settle(ctx, exec, core.ExecutionFailed, "feed deleted")
	}
	if err != nil {
		return Result{}, err
	}

	plugin, err := h.registry.Lookup(p.PluginName)
	if err != nil {
		if _, serr := h.settle(ctx, exec, core.ExecutionFailed, err.Error()); serr != nil {
			return Result{}, errors.Join(err, serr)
		}
		return Result{}, err
	}

	exec.Status = core.ExecutionRunning
	exec.JobID = job.ID
	exec.StartedAt = h.now()
	if exec, err = h.feeds.UpdateFeedExecution(ctx, exec); err != nil {
		return Result{}, err
	}

	items, err := plugin.Fetch(ctx, feed, p.Params)
	if err != nil {
		logger.Warn("feed fetch failed", "plugin", p.PluginName, "attempt", job.Attempts, "err", err)
		exec.Error = err.Error()
		if job.Exhausted() {
			exec.Status = core.ExecutionFailed
			exec.CompletedAt = h.now()
		}
		if _, uerr := h.feeds.UpdateFeedExecution(ctx, exec); uerr != nil {
			return Result{}, errors.Join(err, uerr)
		}
		return Result{}, err
	}

	kbID := p.KnowledgeBaseID
	if kbID == "" {
		kbID = feed.KnowledgeBaseID
	}
	failed := 0
	for _, item := range items {
		if err := h.ingestItem(ctx, kbID, item); err != nil {
			failed++
			logger.Warn("feed item ingestion failed", "source_id", item.SourceID, "err", err)
		}
	}

	exec.ItemsSeen = len(items)
	if failed > 0 {
		exec.Error = fmt.Sprintf("%d of %d items failed", failed, len(items))
	} else {
		exec.Error = ""
	}
	if _, err := h.settle(ctx, exec, core.ExecutionSuccess, exec.Error); err != nil {
		return Result{}, err
	}

	// Reload so a concurrent scheduler update of NextRunAt is kept.
	if current, err := h.feeds.GetFeed(ctx, feed.ID); err == nil {
		current.LastRunAt = exec.CompletedAt
		if _, err := h.feeds.UpdateFeed(ctx, current); err != nil {
			logger.Warn("failed to record feed run", "err", err)
		}
	}
	logger.Info("feed execution complete", "items", len(items), "failed", failed)
	return Success(nil), nil
}

func (h *FeedHandler) ingestItem(ctx context.Context, kbID string, item FeedItem) error {
	if len(item.Data) > 0 {
		_, err := h.ingest.IngestDocument(ctx, &ingestion.DocumentRequest{
			KnowledgeBaseID: kbID,
			SourceID:        item.SourceID,
			Filename:        item.Filename,
			MimeType:        item.MimeType,
			Data:            item.Data,
			SourceHash:      item.SourceHash,
			Title:           item.Title,
			Metadata:        item.Metadata,
		})
		return err
	}
	_, err := h.ingest.IngestText(ctx, &ingestion.TextRequest{
		KnowledgeBaseID: kbID,
		SourceID:        item.SourceID,
		Title:           item.Title,
		Content:         item.Content,
		SourceHash:      item.SourceHash,
		Metadata:        item.Metadata,
	})
	return err
}

func (h *FeedHandler) settle(ctx context.Context, exec *core.FeedExecution, status core.ExecutionStatus, msg string) (Result, error) {
	exec.Status = status
	exec.Error = msg
	exec.CompletedAt = h.now()
	if _, err := h.feeds.UpdateFeedExecution(ctx, exec); err != nil {
		return Result{}, err
	}
	if status == core.ExecutionFailed {
		return Cancelled(msg), nil
	}
	return Success(nil), nil
}
