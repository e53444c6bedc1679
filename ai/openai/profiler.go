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


package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docflow/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const parseAttempts = 3

// ErrEmptyResponse is returned when the model produces no choices.
var ErrEmptyResponse = errors.New("profiler model returned no choices")

// Profiler implements ai.Profiler using OpenAI-compatible chat APIs.
type Profiler struct {
	client    llms.Model
	maxTopics int
	maxInput  int
	logger    *slog.Logger
}

var _ ai.Profiler = (*Profiler)(nil)

// profileResponse matches the JSON object requested in the system prompt.
type profileResponse struct {
	Summary  string   `json:"summary"`
	Topics   []string `json:"topics"`
	Language string   `json:"language"`
}

func newProfiler(config *ai.Config) (*Profiler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ProfilerHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.ProfilerModel),
	)
	if err != nil {
		return nil, err
	}
	return newProfilerWithModel(client, config), nil
}

func newProfilerWithModel(client llms.Model, config *ai.Config) *Profiler {
	return &Profiler{
		client:    client,
		maxTopics: config.MaxTopics,
		maxInput:  config.MaxProfileInput,
		logger: slog.Default().With("component", "openai-profiler",
			"model", config.ProfilerModel),
	}
}

// NewProfiler creates a new profiler using the provided configuration.
func NewProfiler(config *ai.Config) (ai.Profiler, error) {
	return newProfiler(config)
}

// ProfileDocument asks the model for a summary and topic list. Malformed
// JSON is repaired where possible and the request is retried up to three
// times before giving up.
func (p *Profiler) ProfileDocument(ctx context.Context, title, text string) (*ai.DocumentProfile, error) {
	text = truncateText(strings.TrimSpace(text), p.maxInput)
	if text == "" {
		return &ai.DocumentProfile{Topics: []string{}}, nil
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, buildProfilePrompt(p.maxTopics)),
		llms.TextParts(llms.ChatMessageTypeHuman, buildProfileInput(title, text)),
	}

	var lastErr error
	for attempt := 1; attempt <= parseAttempts; attempt++ {
		response, err := p.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			p.logger.Error("failed to generate content", "attempt", attempt, "err", err)
			return nil, err
		}
		if len(response.Choices) < 1 {
			return nil, ErrEmptyResponse
		}

		raw := response.Choices[0].Content
		parsed, err := parseProfile(raw)
		if err != nil {
			lastErr = err
			p.logger.Warn("error parsing profiler response",
				"attempt", attempt,
				"response", raw,
				"err", err)
			continue
		}
		return p.finish(parsed), nil
	}

	p.logger.Error("failed to parse profiler response after retries", "err", lastErr)
	return nil, fmt.Errorf("profiler response unreadable after %d attempts: %w", parseAttempts, lastErr)
}

func parseProfile(raw string) (*profileResponse, error) {
	var result profileResponse
	if err := json.Unmarshal([]byte(repairJSON(stripFences(raw))), &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.Summary) == "" {
		return nil, errors.New("profile has no summary")
	}
	return &result, nil
}

// finish normalizes topics, drops duplicates and empties, and applies the cap.
func (p *Profiler) finish(r *profileResponse) *ai.DocumentProfile {
	seen := make(map[string]bool, len(r.Topics))
	topics := make([]string, 0, len(r.Topics))
	for _, t := range r.Topics {
		t = normalizeTopic(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		topics = append(topics, t)
		if len(topics) == p.maxTopics {
			break
		}
	}

	lang := strings.ToLower(strings.TrimSpace(r.Language))
	if len(lang) != 2 {
		lang = ""
	}

	p.logger.Debug("profiled document", "topics", len(topics), "language", lang)
	return &ai.DocumentProfile{
		Summary:  strings.TrimSpace(r.Summary),
		Topics:   topics,
		Language: lang,
	}
}
