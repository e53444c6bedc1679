package workload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/queue/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRoutes(t *testing.T) {
	tests := []struct {
		kind        Kind
		queue       string
		action      string
		maxAttempts int
		visibility  time.Duration
	}{
		{KindOCR, "ocr", ActionExtractText, 3, 900 * time.Second},
		{KindEmbed, "embed", ActionEmbedDocument, 3, 900 * time.Second},
		{KindProfiling, "profiling", ActionProfileDocument, 5, 600 * time.Second},
		{KindFeedExecution, "ingestion", ActionPluginFeedExecution, 3, 3600 * time.Second},
		{KindExperienceExecution, "experiences", ActionExperienceExecution, 3, 3600 * time.Second},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			route, err := Default().Route(tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.queue, route.Queue)
			assert.Equal(t, tt.action, route.Action)
			assert.Equal(t, tt.maxAttempts, route.Policy.MaxAttempts)
			assert.Equal(t, tt.visibility, route.Policy.VisibilityTimeout)
		})
	}

	_, err := Default().Route("bogus")
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, []string{"embed", "experiences", "ingestion", "ocr", "profiling"}, Default().Queues())
}

func TestEnqueueJobStampsRoute(t *testing.T) {
	backend := memory.New()
	defer backend.Close()
	ctx := context.Background()

	job, err := EnqueueJob(ctx, backend, KindProfiling, ProfilingPayload{DocumentID: "d1"}.Payload())
	require.NoError(t, err)
	assert.Equal(t, "profiling", job.QueueName)
	assert.Equal(t, 5, job.MaxAttempts)
	assert.Equal(t, 600*time.Second, job.VisibilityTimeout)

	got, err := backend.Dequeue(ctx, "profiling", 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	action, _ := got.Payload.GetString(ActionKey)
	assert.Equal(t, ActionProfileDocument, action)
}

func TestEnqueueJobAddsMissingAction(t *testing.T) {
	backend := memory.New()
	defer backend.Close()

	payload := queue.NewPayload().Set("document_id", "d1").Set("knowledge_base_id", "kb1")
	job, err := EnqueueJob(context.Background(), backend, KindEmbed, payload)
	require.NoError(t, err)
	action, _ := job.Payload.GetString(ActionKey)
	assert.Equal(t, ActionEmbedDocument, action)
}

func TestEnqueueJobRejectsInvalidPayload(t *testing.T) {
	backend := memory.New()
	defer backend.Close()
	ctx := context.Background()

	_, err := EnqueueJob(ctx, backend, KindEmbed, queue.NewPayload().Set("document_id", "d1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	n, err := backend.QueueLength(ctx, "embed")
	require.NoError(t, err)
	assert.Zero(t, n)
}

type failingBackend struct {
	queue.Backend
}

func (failingBackend) Enqueue(ctx context.Context, job *queue.Job) error {
	return errors.New("connection refused")
}

func TestEnqueueJobWrapsBackendError(t *testing.T) {
	_, err := EnqueueJob(context.Background(), failingBackend{}, KindEmbed,
		EmbedPayload{DocumentID: "d1", KnowledgeBaseID: "kb1"}.Payload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to enqueue embed job")
}

func TestRouterOverrides(t *testing.T) {
	router, err := NewRouter(
		WithRoute(KindOCR, Route{Queue: "ocr-gpu", Action: ActionExtractText, Policy: Policy{MaxAttempts: 1, VisibilityTimeout: time.Minute}}),
		WithQueuePrefix("test-"),
	)
	require.NoError(t, err)

	route, err := router.Route(KindOCR)
	require.NoError(t, err)
	assert.Equal(t, "test-ocr-gpu", route.Queue)
	assert.Equal(t, 1, route.Policy.MaxAttempts)
	assert.Equal(t, "test-embed", router.QueueFor(KindEmbed))

	kind, ok := router.KindForAction("test-ingestion", ActionPluginFeedExecution)
	assert.True(t, ok)
	assert.Equal(t, KindFeedExecution, kind)

	_, err = NewRouter(WithRoute(KindOCR, Route{Queue: "ocr"}))
	assert.Error(t, err)
}
