package ingestion

import (
	"testing"

	"github.com/poiesic/docflow/core"
	"github.com/stretchr/testify/assert"
)

func TestCheckSkip(t *testing.T) {
	const hash = "abc"
	const other = "def"

	doc := func(status core.ProcessingStatus, kind core.FailureKind, message string) *core.Document {
		return &core.Document{
			ContentHash:     hash,
			Status:          status,
			FailureKind:     kind,
			ProcessingError: message,
		}
	}

	tests := []struct {
		name        string
		existing    *core.Document
		contentHash string
		sourceHash  string
		force       bool
		skip        bool
	}{
		{"no existing document", nil, hash, "", false, false},
		{"processed with matching hash", doc(core.StatusProcessed, core.FailureNone, ""), hash, "", false, true},
		{"processed with changed content", doc(core.StatusProcessed, core.FailureNone, ""), other, "", false, false},
		{"in flight with matching hash", doc(core.StatusEmbedding, core.FailureNone, ""), hash, "", false, true},
		{"pending with matching hash", doc(core.StatusPending, core.FailureNone, ""), hash, "", false, true},
		{"deterministic error with matching hash", doc(core.StatusError, core.FailureDeterministic, "ocr: malformed document"), hash, "", false, true},
		{"deterministic error with changed content", doc(core.StatusError, core.FailureDeterministic, "ocr: malformed document"), other, "", false, false},
		{"transient error with matching hash", doc(core.StatusError, core.FailureTransient, "ingest: failed to stage file: disk full"), hash, "", false, false},
		{"legacy transient message", doc(core.StatusError, core.FailureNone, "Failed to enqueue OCR job"), hash, "", false, false},
		{"legacy deterministic message", doc(core.StatusError, core.FailureNone, "could not parse PDF"), hash, "", false, true},
		{"force on processed", doc(core.StatusProcessed, core.FailureNone, ""), hash, "", true, false},
		{"force on deterministic error", doc(core.StatusError, core.FailureDeterministic, "bad bytes"), hash, "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.skip, checkSkip(tt.existing, tt.contentHash, tt.sourceHash, tt.force, false))
		})
	}
}

func TestCheckSkipSourceHash(t *testing.T) {
	existing := &core.Document{ContentHash: "old", SourceHash: "etag-1", Status: core.StatusOCR}

	assert.True(t, checkSkip(existing, "new", "etag-1", false, false), "source hash takes priority over content hash")
	assert.False(t, checkSkip(existing, "new", "etag-2", false, false))
	assert.False(t, checkSkip(existing, "new", "", false, false))

	existing.MarkError(core.FailureTransient, "ingest: failed to enqueue ocr job")
	assert.False(t, checkSkip(existing, "new", "etag-1", false, false))
	existing.MarkError(core.FailureDeterministic, "ocr: no text extracted")
	assert.True(t, checkSkip(existing, "new", "etag-1", false, false))
	assert.False(t, checkSkip(existing, "new", "etag-1", true, false))
}

func TestCheckSkipAbandoned(t *testing.T) {
	for _, status := range []core.ProcessingStatus{core.StatusPending, core.StatusOCR, core.StatusEmbedding} {
		existing := &core.Document{ContentHash: "abc", SourceHash: "etag-1", Status: status}
		assert.True(t, checkSkip(existing, "abc", "", false, false), status)
		assert.False(t, checkSkip(existing, "abc", "", false, true), status)
		assert.False(t, checkSkip(existing, "abc", "etag-1", false, true), status)
	}

	processed := &core.Document{ContentHash: "abc", Status: core.StatusProcessed}
	assert.True(t, checkSkip(processed, "abc", "", false, true), "terminal rows are never abandoned")
}
