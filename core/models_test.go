package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash(t *testing.T) {
	tests := []struct {
		name string
		a, b []byte
		same bool
	}{
		{"same content produces same hash", []byte("test content"), []byte("test content"), true},
		{"empty content", []byte{}, nil, true},
		{"different content", []byte("content1"), []byte("content2"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h1 := ContentHash(tt.a)
			h2 := ContentHash(tt.b)
			assert.Len(t, h1, 64)
			if tt.same {
				assert.Equal(t, h1, h2)
			} else {
				assert.NotEqual(t, h1, h2)
			}
		})
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewID()
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestProcessingStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusProcessed.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusOCR.IsTerminal())
	assert.False(t, StatusEmbedding.IsTerminal())
}

func TestDocument_MarkAndClearError(t *testing.T) {
	doc := &Document{Status: StatusOCR}
	doc.MarkError(FailureDeterministic, "Text extraction failed: bad pdf")

	assert.Equal(t, StatusError, doc.Status)
	assert.Equal(t, FailureDeterministic, doc.FailureKind)
	assert.Equal(t, "Text extraction failed: bad pdf", doc.ProcessingError)

	doc.ClearError()
	assert.Equal(t, FailureNone, doc.FailureKind)
	assert.Empty(t, doc.ProcessingError)
}

func TestClassifyFailure(t *testing.T) {
	base := errors.New("boom")

	assert.Equal(t, FailureNone, ClassifyFailure(nil))
	assert.Equal(t, FailureDeterministic, ClassifyFailure(Deterministic("extract", base)))
	assert.Equal(t, FailureTransient, ClassifyFailure(Transient("stage", base)))
	assert.Equal(t, FailureTransient, ClassifyFailure(base), "unclassified errors are retried")

	wrapped := errors.Join(errors.New("context"), Deterministic("extract", base))
	assert.Equal(t, FailureDeterministic, ClassifyFailure(wrapped))
	assert.ErrorIs(t, Deterministic("extract", base), base)
}

func TestFailureKind_String(t *testing.T) {
	assert.Equal(t, "none", FailureNone.String())
	assert.Equal(t, "deterministic", FailureDeterministic.String())
	assert.Equal(t, "transient", FailureTransient.String())
	assert.True(t, strings.HasPrefix(FailureKind(42).String(), "FailureKind("))
}

func TestTrigger_Next(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("interval", func(t *testing.T) {
		next, err := Trigger{Interval: time.Hour}.Next(base)
		require.NoError(t, err)
		assert.Equal(t, base.Add(time.Hour), next)
	})

	t.Run("cron takes precedence", func(t *testing.T) {
		next, err := Trigger{Interval: time.Hour, Cron: "30 12 * * *"}.Next(base)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC), next)
	})

	t.Run("invalid cron", func(t *testing.T) {
		_, err := Trigger{Cron: "not a cron"}.Next(base)
		assert.ErrorIs(t, err, ErrInvalidTrigger)
	})

	t.Run("no interval", func(t *testing.T) {
		_, err := Trigger{}.Next(base)
		assert.ErrorIs(t, err, ErrInvalidTrigger)
	})
}

func TestIsDue(t *testing.T) {
	now := time.Now()
	assert.True(t, IsDue(true, now, now))
	assert.True(t, IsDue(true, now.Add(-time.Minute), now))
	assert.False(t, IsDue(true, now.Add(time.Minute), now))
	assert.False(t, IsDue(false, now.Add(-time.Minute), now))
}

func TestExecutionStatus_IsActive(t *testing.T) {
	assert.True(t, ExecutionPending.IsActive())
	assert.True(t, ExecutionRunning.IsActive())
	assert.False(t, ExecutionSuccess.IsActive())
	assert.False(t, ExecutionFailed.IsActive())
	assert.False(t, ExecutionTimedOut.IsActive())
}

func TestInferFailureKind(t *testing.T) {
	tests := []struct {
		message  string
		expected FailureKind
	}{
		{"", FailureNone},
		{"Failed to stage file: disk full", FailureTransient},
		{"ingest: failed to enqueue ocr job: connection reset", FailureTransient},
		{"ocr: failed to retrieve staged file: expired", FailureTransient},
		{"ocr: malformed document: bad xref table", FailureDeterministic},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, InferFailureKind(tt.message), tt.message)
	}
}

func TestDocument_RecordedFailure(t *testing.T) {
	doc := &Document{Status: StatusProcessed, ProcessingError: "stale"}
	assert.Equal(t, FailureNone, doc.RecordedFailure())

	doc.MarkError(FailureTransient, "ocr: unreadable bytes")
	assert.Equal(t, FailureTransient, doc.RecordedFailure())

	legacy := &Document{Status: StatusError, ProcessingError: "Failed to enqueue embed job"}
	assert.Equal(t, FailureTransient, legacy.RecordedFailure())
	legacy.ProcessingError = "unsupported file type"
	assert.Equal(t, FailureDeterministic, legacy.RecordedFailure())
}
