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


package storage

import (
	"fmt"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/queue"
)

func decodeErr(dec *core.Decoder, what string) error {
	if err := dec.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, what, err)
	}
	return nil
}

// MarshalKnowledgeBase serializes a KnowledgeBase to bytes.
func MarshalKnowledgeBase(kb *core.KnowledgeBase) []byte {
	enc := core.NewEncoder(64)
	enc.String(kb.ID)
	enc.String(kb.TenantID)
	enc.String(kb.Name)
	enc.Bool(kb.ProfilingEnabled)
	enc.Time(kb.CreatedAt)
	enc.Time(kb.UpdatedAt)
	return enc.Bytes()
}

// UnmarshalKnowledgeBase deserializes a KnowledgeBase from bytes.
func UnmarshalKnowledgeBase(data []byte) (*core.KnowledgeBase, error) {
	dec := core.NewDecoder(data)
	kb := &core.KnowledgeBase{
		ID:               dec.String(),
		TenantID:         dec.String(),
		Name:             dec.String(),
		ProfilingEnabled: dec.Bool(),
		CreatedAt:        dec.Time(),
		UpdatedAt:        dec.Time(),
	}
	if err := decodeErr(dec, "knowledge base"); err != nil {
		return nil, err
	}
	return kb, nil
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	enc := core.NewEncoder(128 + len(doc.Content))
	enc.String(doc.ID)
	enc.String(doc.KnowledgeBaseID)
	enc.String(doc.SourceID)
	enc.String(doc.Title)
	enc.String(doc.Filename)
	enc.String(doc.MimeType)
	enc.String(doc.Content)
	enc.String(doc.ContentHash)
	enc.String(doc.SourceHash)
	enc.String(string(doc.Status))
	enc.String(doc.ProcessingError)
	enc.Int(int(doc.FailureKind))
	enc.Int(doc.WordCount)
	enc.Int(doc.CharacterCount)
	enc.Int(doc.ChunkCount)
	enc.String(doc.LastJobID)
	enc.Bool(doc.Profile != nil)
	if doc.Profile != nil {
		enc.String(doc.Profile.Summary)
		enc.Strings(doc.Profile.Topics)
		enc.String(doc.Profile.Language)
		enc.Time(doc.Profile.ProfiledAt)
	}
	enc.StringMap(doc.Metadata)
	enc.Time(doc.CreatedAt)
	enc.Time(doc.UpdatedAt)
	return enc.Bytes()
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	dec := core.NewDecoder(data)
	doc := &core.Document{
		ID:              dec.String(),
		KnowledgeBaseID: dec.String(),
		SourceID:        dec.String(),
		Title:           dec.String(),
		Filename:        dec.String(),
		MimeType:        dec.String(),
		Content:         dec.String(),
		ContentHash:     dec.String(),
		SourceHash:      dec.String(),
		Status:          core.ProcessingStatus(dec.String()),
		ProcessingError: dec.String(),
		FailureKind:     core.FailureKind(dec.Int()),
		WordCount:       dec.Int(),
		CharacterCount:  dec.Int(),
		ChunkCount:      dec.Int(),
		LastJobID:       dec.String(),
	}
	if dec.Bool() {
		doc.Profile = &core.Profile{
			Summary:    dec.String(),
			Topics:     dec.Strings(),
			Language:   dec.String(),
			ProfiledAt: dec.Time(),
		}
	}
	doc.Metadata = dec.StringMap()
	doc.CreatedAt = dec.Time()
	doc.UpdatedAt = dec.Time()
	if err := decodeErr(dec, "document"); err != nil {
		return nil, err
	}
	return doc, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	enc := core.NewEncoder(64 + len(chunk.Content) + 5*len(chunk.Vector))
	enc.String(chunk.ID)
	enc.String(chunk.DocumentID)
	enc.Int(chunk.Position)
	enc.String(chunk.Content)
	enc.Vector(chunk.Vector)
	enc.Time(chunk.CreatedAt)
	return enc.Bytes()
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	dec := core.NewDecoder(data)
	chunk := &core.Chunk{
		ID:         dec.String(),
		DocumentID: dec.String(),
		Position:   dec.Int(),
		Content:    dec.String(),
		Vector:     dec.Vector(),
		CreatedAt:  dec.Time(),
	}
	if err := decodeErr(dec, "chunk"); err != nil {
		return nil, err
	}
	return chunk, nil
}

func encodeTrigger(enc *core.Encoder, t core.Trigger) {
	enc.Duration(t.Interval)
	enc.String(t.Cron)
}

func decodeTrigger(dec *core.Decoder) core.Trigger {
	return core.Trigger{Interval: dec.Duration(), Cron: dec.String()}
}

// MarshalFeed serializes a Feed to bytes. Params are embedded as JSON.
func MarshalFeed(feed *core.Feed) ([]byte, error) {
	params, err := queue.PayloadFrom(feed.Params).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: feed params: %w", ErrSerializationFailed, err)
	}
	enc := core.NewEncoder(96 + len(params))
	enc.String(feed.ID)
	enc.String(feed.KnowledgeBaseID)
	enc.String(feed.PluginName)
	enc.String(string(params))
	encodeTrigger(enc, feed.Trigger)
	enc.Bool(feed.Enabled)
	enc.Time(feed.NextRunAt)
	enc.Time(feed.LastRunAt)
	enc.Time(feed.CreatedAt)
	enc.Time(feed.UpdatedAt)
	return enc.Bytes(), nil
}

// UnmarshalFeed deserializes a Feed from bytes.
func UnmarshalFeed(data []byte) (*core.Feed, error) {
	dec := core.NewDecoder(data)
	feed := &core.Feed{
		ID:              dec.String(),
		KnowledgeBaseID: dec.String(),
		PluginName:      dec.String(),
	}
	rawParams := dec.String()
	feed.Trigger = decodeTrigger(dec)
	feed.Enabled = dec.Bool()
	feed.NextRunAt = dec.Time()
	feed.LastRunAt = dec.Time()
	feed.CreatedAt = dec.Time()
	feed.UpdatedAt = dec.Time()
	if err := decodeErr(dec, "feed"); err != nil {
		return nil, err
	}

	params := queue.NewPayload()
	if err := params.UnmarshalJSON([]byte(rawParams)); err != nil {
		return nil, fmt.Errorf("%w: feed params: %w", ErrSerializationFailed, err)
	}
	if params.Len() > 0 {
		feed.Params = params.Values()
	}
	return feed, nil
}

// MarshalFeedExecution serializes a FeedExecution to bytes.
func MarshalFeedExecution(exec *core.FeedExecution) []byte {
	enc := core.NewEncoder(96)
	enc.String(exec.ID)
	enc.String(exec.FeedID)
	enc.String(string(exec.Status))
	enc.String(exec.JobID)
	enc.Int(exec.ItemsSeen)
	enc.String(exec.Error)
	enc.Time(exec.CreatedAt)
	enc.Time(exec.StartedAt)
	enc.Time(exec.CompletedAt)
	return enc.Bytes()
}

// UnmarshalFeedExecution deserializes a FeedExecution from bytes.
func UnmarshalFeedExecution(data []byte) (*core.FeedExecution, error) {
	dec := core.NewDecoder(data)
	exec := &core.FeedExecution{
		ID:          dec.String(),
		FeedID:      dec.String(),
		Status:      core.ExecutionStatus(dec.String()),
		JobID:       dec.String(),
		ItemsSeen:   dec.Int(),
		Error:       dec.String(),
		CreatedAt:   dec.Time(),
		StartedAt:   dec.Time(),
		CompletedAt: dec.Time(),
	}
	if err := decodeErr(dec, "feed execution"); err != nil {
		return nil, err
	}
	return exec, nil
}

// MarshalExperience serializes an Experience to bytes.
func MarshalExperience(exp *core.Experience) []byte {
	enc := core.NewEncoder(64)
	enc.String(exp.ID)
	enc.String(exp.Name)
	encodeTrigger(enc, exp.Trigger)
	enc.Bool(exp.Enabled)
	enc.Time(exp.NextRunAt)
	enc.Time(exp.LastRunAt)
	enc.Time(exp.CreatedAt)
	enc.Time(exp.UpdatedAt)
	return enc.Bytes()
}

// UnmarshalExperience deserializes an Experience from bytes.
func UnmarshalExperience(data []byte) (*core.Experience, error) {
	dec := core.NewDecoder(data)
	exp := &core.Experience{
		ID:        dec.String(),
		Name:      dec.String(),
		Trigger:   decodeTrigger(dec),
		Enabled:   dec.Bool(),
		NextRunAt: dec.Time(),
		LastRunAt: dec.Time(),
		CreatedAt: dec.Time(),
		UpdatedAt: dec.Time(),
	}
	if err := decodeErr(dec, "experience"); err != nil {
		return nil, err
	}
	return exp, nil
}

// MarshalExperienceRun serializes an ExperienceRun to bytes.
func MarshalExperienceRun(run *core.ExperienceRun) []byte {
	enc := core.NewEncoder(96)
	enc.String(run.ID)
	enc.String(run.ExperienceID)
	enc.String(run.UserID)
	enc.String(string(run.Status))
	enc.String(run.JobID)
	enc.String(run.Error)
	enc.Time(run.CreatedAt)
	enc.Time(run.StartedAt)
	enc.Time(run.CompletedAt)
	return enc.Bytes()
}

// UnmarshalExperienceRun deserializes an ExperienceRun from bytes.
func UnmarshalExperienceRun(data []byte) (*core.ExperienceRun, error) {
	dec := core.NewDecoder(data)
	run := &core.ExperienceRun{
		ID:           dec.String(),
		ExperienceID: dec.String(),
		UserID:       dec.String(),
		Status:       core.ExecutionStatus(dec.String()),
		JobID:        dec.String(),
		Error:        dec.String(),
		CreatedAt:    dec.Time(),
		StartedAt:    dec.Time(),
		CompletedAt:  dec.Time(),
	}
	if err := decodeErr(dec, "experience run"); err != nil {
		return nil, err
	}
	return run, nil
}

// MarshalUser serializes a User to bytes.
func MarshalUser(user *core.User) []byte {
	enc := core.NewEncoder(64)
	enc.String(user.ID)
	enc.String(user.Email)
	enc.Bool(user.Active)
	enc.Time(user.CreatedAt)
	return enc.Bytes()
}

// UnmarshalUser deserializes a User from bytes.
func UnmarshalUser(data []byte) (*core.User, error) {
	dec := core.NewDecoder(data)
	user := &core.User{
		ID:        dec.String(),
		Email:     dec.String(),
		Active:    dec.Bool(),
		CreatedAt: dec.Time(),
	}
	if err := decodeErr(dec, "user"); err != nil {
		return nil, err
	}
	return user, nil
}

// MarshalIdentity serializes an Identity to bytes.
func MarshalIdentity(identity *core.Identity) []byte {
	enc := core.NewEncoder(64)
	enc.String(identity.Provider)
	enc.String(identity.Subject)
	enc.String(identity.UserID)
	enc.Time(identity.CreatedAt)
	return enc.Bytes()
}

// UnmarshalIdentity deserializes an Identity from bytes.
func UnmarshalIdentity(data []byte) (*core.Identity, error) {
	dec := core.NewDecoder(data)
	identity := &core.Identity{
		Provider:  dec.String(),
		Subject:   dec.String(),
		UserID:    dec.String(),
		CreatedAt: dec.Time(),
	}
	if err := decodeErr(dec, "identity"); err != nil {
		return nil, err
	}
	return identity, nil
}

// MarshalAttachment serializes an Attachment to bytes.
func MarshalAttachment(att *core.Attachment) []byte {
	enc := core.NewEncoder(64)
	enc.String(att.ID)
	enc.String(att.StagingKey)
	enc.String(att.Filename)
	enc.Int64(att.Size)
	enc.Time(att.CreatedAt)
	enc.Time(att.ExpiresAt)
	return enc.Bytes()
}

// UnmarshalAttachment deserializes an Attachment from bytes.
func UnmarshalAttachment(data []byte) (*core.Attachment, error) {
	dec := core.NewDecoder(data)
	att := &core.Attachment{
		ID:         dec.String(),
		StagingKey: dec.String(),
		Filename:   dec.String(),
		Size:       dec.Int64(),
		CreatedAt:  dec.Time(),
		ExpiresAt:  dec.Time(),
	}
	if err := decodeErr(dec, "attachment"); err != nil {
		return nil, err
	}
	return att, nil
}
