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


package core

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// NewID returns a new random identifier for domain entities.
func NewID() string {
	return uuid.NewString()
}

// ContentHash returns the hex-encoded BLAKE2b-256 digest of data.
// Identical content always produces the identical hash.
func ContentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ProcessingStatus is the pipeline state of a Document.
type ProcessingStatus string

const (
	// StatusPending means the document is staged and waiting for text extraction.
	StatusPending ProcessingStatus = "PENDING"
	// StatusOCR means text extraction is in progress.
	StatusOCR ProcessingStatus = "OCR"
	// StatusEmbedding means the document has text and is waiting to be chunked and embedded.
	StatusEmbedding ProcessingStatus = "EMBEDDING"
	// StatusProcessed means chunks and embeddings have been written.
	StatusProcessed ProcessingStatus = "PROCESSED"
	// StatusError means the last pipeline attempt failed. See Document.FailureKind.
	StatusError ProcessingStatus = "ERROR"
)

// IsTerminal reports whether no pipeline stage is expected to act on the status.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusProcessed || s == StatusError
}

// KnowledgeBase is the per-tenant collection that owns documents.
type KnowledgeBase struct {
	ID               string
	TenantID         string
	Name             string
	ProfilingEnabled bool // Enqueue semantic profiling after embedding
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Document is the ingestion target advanced through the pipeline.
type Document struct {
	ID              string
	KnowledgeBaseID string
	SourceID        string // Connector or caller supplied identity within the knowledge base
	Title           string
	Filename        string
	MimeType        string
	Content         string // Extracted or supplied text
	ContentHash     string
	SourceHash      string // Connector supplied, preferred over ContentHash when present
	Status          ProcessingStatus
	ProcessingError string
	FailureKind     FailureKind
	WordCount       int
	CharacterCount  int
	ChunkCount      int
	LastJobID       string
	Profile         *Profile
	Metadata        map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MarkError records a failed pipeline attempt on the document.
func (d *Document) MarkError(kind FailureKind, message string) {
	d.Status = StatusError
	d.FailureKind = kind
	d.ProcessingError = message
}

// ClearError resets failure state before a new pipeline attempt.
func (d *Document) ClearError() {
	d.FailureKind = FailureNone
	d.ProcessingError = ""
}

// Profile is the semantic profile produced for a processed document.
type Profile struct {
	Summary    string
	Topics     []string
	Language   string
	ProfiledAt time.Time
}

// Chunk is one embedded slice of a document's content.
type Chunk struct {
	ID         string
	DocumentID string
	Position   int
	Content    string
	Vector     []float32
	CreatedAt  time.Time
}
