package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/docflow/ai"
)

// MockProfiler is a test double for ai.Profiler.
type MockProfiler struct {
	// ProfileDocumentFunc is called by ProfileDocument if set.
	// If nil, the summary is the first sentence of text and the topics are
	// the first three distinct lowercase words longer than three letters.
	ProfileDocumentFunc func(ctx context.Context, title, text string) (*ai.DocumentProfile, error)

	mu        sync.Mutex
	callCount int
}

// NewMockProfiler creates a mock profiler with default deterministic behavior.
func NewMockProfiler() *MockProfiler {
	return &MockProfiler{}
}

func (m *MockProfiler) ProfileDocument(ctx context.Context, title, text string) (*ai.DocumentProfile, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.ProfileDocumentFunc != nil {
		return m.ProfileDocumentFunc(ctx, title, text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := strings.TrimSpace(text)
	if i := strings.IndexAny(summary, ".!?\n"); i >= 0 {
		summary = strings.TrimSpace(summary[:i+1])
	}

	topics := []string{}
	seen := map[string]bool{}
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if len(word) <= 3 || seen[word] {
			continue
		}
		seen[word] = true
		topics = append(topics, word)
		if len(topics) == 3 {
			break
		}
	}
	return &ai.DocumentProfile{Summary: summary, Topics: topics, Language: "en"}, nil
}

// CallCount returns the number of ProfileDocument calls.
func (m *MockProfiler) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and injected behavior.
func (m *MockProfiler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.ProfileDocumentFunc = nil
}
