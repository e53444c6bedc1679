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

import "github.com/poiesic/docflow/queue"

// OCRPayload is the typed view of an OCR job.
type OCRPayload struct {
	DocumentID      string
	KnowledgeBaseID string
	StagingKey      string
	Filename        string
	MimeType        string
	// ContentHash is the document's content hash when the job was queued.
	ContentHash string
}

func (p OCRPayload) Payload() *queue.Payload {
	payload := queue.NewPayload().
		Set("document_id", p.DocumentID).
		Set("knowledge_base_id", p.KnowledgeBaseID).
		Set("staging_key", p.StagingKey).
		Set("filename", p.Filename).
		Set("mime_type", p.MimeType)
	return withContentHash(payload, p.ContentHash).Set(ActionKey, ActionExtractText)
}

// ParseOCR validates payload and returns its typed view.
func ParseOCR(payload *queue.Payload) (*OCRPayload, error) {
	if err := Validate(KindOCR, payload); err != nil {
		return nil, err
	}
	return &OCRPayload{
		DocumentID:      str(payload, "document_id"),
		KnowledgeBaseID: str(payload, "knowledge_base_id"),
		StagingKey:      str(payload, "staging_key"),
		Filename:        str(payload, "filename"),
		MimeType:        str(payload, "mime_type"),
		ContentHash:     str(payload, "content_hash"),
	}, nil
}

// EmbedPayload is the typed view of an embed job.
type EmbedPayload struct {
	DocumentID      string
	KnowledgeBaseID string
	ContentHash     string
}

func (p EmbedPayload) Payload() *queue.Payload {
	payload := queue.NewPayload().
		Set("document_id", p.DocumentID).
		Set("knowledge_base_id", p.KnowledgeBaseID)
	return withContentHash(payload, p.ContentHash).Set(ActionKey, ActionEmbedDocument)
}

// ParseEmbed validates payload and returns its typed view.
func ParseEmbed(payload *queue.Payload) (*EmbedPayload, error) {
	if err := Validate(KindEmbed, payload); err != nil {
		return nil, err
	}
	return &EmbedPayload{
		DocumentID:      str(payload, "document_id"),
		KnowledgeBaseID: str(payload, "knowledge_base_id"),
		ContentHash:     str(payload, "content_hash"),
	}, nil
}

// ProfilingPayload is the typed view of a profiling job.
// KnowledgeBaseID is optional; handlers fall back to the document's.
type ProfilingPayload struct {
	DocumentID      string
	KnowledgeBaseID string
	ContentHash     string
}

func (p ProfilingPayload) Payload() *queue.Payload {
	payload := queue.NewPayload().Set("document_id", p.DocumentID)
	if p.KnowledgeBaseID != "" {
		payload.Set("knowledge_base_id", p.KnowledgeBaseID)
	}
	return withContentHash(payload, p.ContentHash).Set(ActionKey, ActionProfileDocument)
}

// ParseProfiling validates payload and returns its typed view.
func ParseProfiling(payload *queue.Payload) (*ProfilingPayload, error) {
	if err := Validate(KindProfiling, payload); err != nil {
		return nil, err
	}
	return &ProfilingPayload{
		DocumentID:      str(payload, "document_id"),
		KnowledgeBaseID: str(payload, "knowledge_base_id"),
		ContentHash:     str(payload, "content_hash"),
	}, nil
}

// FeedPayload is the typed view of a scheduled feed execution.
type FeedPayload struct {
	PluginName      string
	KnowledgeBaseID string
	Params          map[string]any
	ScheduleID      string
	ExecutionID     string
}

func (p FeedPayload) Payload() *queue.Payload {
	payload := queue.NewPayload().
		Set(ActionKey, ActionPluginFeedExecution).
		Set("plugin_name", p.PluginName)
	if p.KnowledgeBaseID != "" {
		payload.Set("knowledge_base_id", p.KnowledgeBaseID)
	}
	params := p.Params
	if params == nil {
		params = map[string]any{}
	}
	return payload.
		Set("params", params).
		Set("schedule_id", p.ScheduleID).
		Set("execution_id", p.ExecutionID)
}

// ParseFeed validates payload and returns its typed view.
func ParseFeed(payload *queue.Payload) (*FeedPayload, error) {
	if err := Validate(KindFeedExecution, payload); err != nil {
		return nil, err
	}
	out := &FeedPayload{
		PluginName:      str(payload, "plugin_name"),
		KnowledgeBaseID: str(payload, "knowledge_base_id"),
		ScheduleID:      str(payload, "schedule_id"),
		ExecutionID:     str(payload, "execution_id"),
		Params:          map[string]any{},
	}
	if params, ok := payload.GetPayload("params"); ok {
		out.Params = params.Values()
	}
	return out, nil
}

// ExperiencePayload is the typed view of an experience execution.
type ExperiencePayload struct {
	ExperienceID string
	RunID        string
	UserID       string
}

func (p ExperiencePayload) Payload() *queue.Payload {
	return queue.NewPayload().
		Set(ActionKey, ActionExperienceExecution).
		Set("experience_id", p.ExperienceID).
		Set("run_id", p.RunID).
		Set("user_id", p.UserID)
}

// ParseExperience validates payload and returns its typed view.
func ParseExperience(payload *queue.Payload) (*ExperiencePayload, error) {
	if err := Validate(KindExperienceExecution, payload); err != nil {
		return nil, err
	}
	return &ExperiencePayload{
		ExperienceID: str(payload, "experience_id"),
		RunID:        str(payload, "run_id"),
		UserID:       str(payload, "user_id"),
	}, nil
}

// withContentHash records the generation a document job was queued for.
// Jobs without one are accepted by every generation.
func withContentHash(p *queue.Payload, hash string) *queue.Payload {
	if hash != "" {
		p.Set("content_hash", hash)
	}
	return p
}

func str(p *queue.Payload, key string) string {
	s, _ := p.GetString(key)
	return s
}
