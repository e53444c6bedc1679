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


package workload

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/poiesic/docflow/queue"
)

// Kind names a category of asynchronous work.
type Kind string

const (
	KindOCR                 Kind = "ocr"
	KindEmbed               Kind = "embed"
	KindProfiling           Kind = "profiling"
	KindFeedExecution       Kind = "feed_execution"
	KindExperienceExecution Kind = "experience_execution"
)

// Actions stamped into payloads so a consumer of a shared queue can dispatch.
const (
	ActionExtractText         = "extract_text"
	ActionEmbedDocument       = "embed_document"
	ActionProfileDocument     = "profile_document"
	ActionPluginFeedExecution = "plugin_feed_execution"
	ActionExperienceExecution = "experience_execution"
)

// ActionKey is the payload field holding the action name.
const ActionKey = "action"

// Policy is the delivery policy applied to every job of a kind.
type Policy struct {
	MaxAttempts       int
	VisibilityTimeout time.Duration
}

// Route binds a kind to its queue, action and policy.
type Route struct {
	Queue  string
	Action string
	Policy Policy
}

// DefaultRoutes returns the standard routing table.
func DefaultRoutes() map[Kind]Route {
	return map[Kind]Route{
		KindOCR: {
			Queue:  "ocr",
			Action: ActionExtractText,
			Policy: Policy{MaxAttempts: 3, VisibilityTimeout: 900 * time.Second},
		},
		KindEmbed: {
			Queue:  "embed",
			Action: ActionEmbedDocument,
			Policy: Policy{MaxAttempts: 3, VisibilityTimeout: 900 * time.Second},
		},
		// Profiling calls an LLM and can be slow
		KindProfiling: {
			Queue:  "profiling",
			Action: ActionProfileDocument,
			Policy: Policy{MaxAttempts: 5, VisibilityTimeout: 600 * time.Second},
		},
		// The timeout bounds a single plugin execution
		KindFeedExecution: {
			Queue:  "ingestion",
			Action: ActionPluginFeedExecution,
			Policy: Policy{MaxAttempts: 3, VisibilityTimeout: 3600 * time.Second},
		},
		KindExperienceExecution: {
			Queue:  "experiences",
			Action: ActionExperienceExecution,
			Policy: Policy{MaxAttempts: 3, VisibilityTimeout: 3600 * time.Second},
		},
	}
}

// Option configures a Router.
type Option func(*Router) error

// WithRoute overrides the route for kind.
func WithRoute(kind Kind, route Route) Option {
	return func(r *Router) error {
		if route.Queue == "" {
			return fmt.Errorf("route for %s has no queue", kind)
		}
		if route.Policy.MaxAttempts <= 0 || route.Policy.VisibilityTimeout <= 0 {
			return fmt.Errorf("route for %s has an invalid policy", kind)
		}
		r.routes[kind] = route
		return nil
	}
}

// WithQueuePrefix prepends prefix to every queue name, e.g. for per-deployment isolation.
func WithQueuePrefix(prefix string) Option {
	return func(r *Router) error {
		for kind, route := range r.routes {
			route.Queue = prefix + route.Queue
			r.routes[kind] = route
		}
		return nil
	}
}

// Router resolves kinds to routes and enqueues jobs.
type Router struct {
	routes map[Kind]Route
}

// NewRouter creates a Router over DefaultRoutes with opts applied in order.
func NewRouter(opts ...Option) (*Router, error) {
	r := &Router{routes: DefaultRoutes()}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

var defaultRouter = &Router{routes: DefaultRoutes()}

// Default returns the Router using the standard routing table.
func Default() *Router {
	return defaultRouter
}

// Route returns the route for kind.
func (r *Router) Route(kind Kind) (Route, error) {
	route, ok := r.routes[kind]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return route, nil
}

// Queues returns every routed queue name, sorted and deduplicated.
func (r *Router) Queues() []string {
	seen := make(map[string]struct{}, len(r.routes))
	for _, route := range r.routes {
		seen[route.Queue] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// QueueFor returns the queue name for kind, or "" when kind is unknown.
func (r *Router) QueueFor(kind Kind) string {
	return r.routes[kind].Queue
}

// KindForAction returns the kind whose route stamps action on queueName.
func (r *Router) KindForAction(queueName, action string) (Kind, bool) {
	for kind, route := range r.routes {
		if route.Queue == queueName && route.Action == action {
			return kind, true
		}
	}
	return "", false
}

// NewJob builds a job for kind without enqueuing it. The payload is validated
// and receives the route's action when it has none.
func (r *Router) NewJob(kind Kind, payload *queue.Payload) (*queue.Job, error) {
	route, err := r.Route(kind)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = queue.NewPayload()
	}
	if !payload.Has(ActionKey) {
		payload.Set(ActionKey, route.Action)
	}
	if err := Validate(kind, payload); err != nil {
		return nil, err
	}
	return queue.NewJob(route.Queue, payload,
		queue.WithMaxAttempts(route.Policy.MaxAttempts),
		queue.WithVisibilityTimeout(route.Policy.VisibilityTimeout),
	), nil
}

// EnqueueJob stamps the route for kind onto a new job and enqueues it.
func (r *Router) EnqueueJob(ctx context.Context, backend queue.Backend, kind Kind, payload *queue.Payload) (*queue.Job, error) {
	job, err := r.NewJob(kind, payload)
	if err != nil {
		return nil, err
	}
	if err := backend.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue %s job: %w", kind, err)
	}
	return job, nil
}

// EnqueueJob enqueues through the default Router.
func EnqueueJob(ctx context.Context, backend queue.Backend, kind Kind, payload *queue.Payload) (*queue.Job, error) {
	return defaultRouter.EnqueueJob(ctx, backend, kind, payload)
}
