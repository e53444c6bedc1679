package documents

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/docflow/ai/mock"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/retry"
	"github.com/poiesic/docflow/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	stores   *badger.Stores
	embedder *mock.MockEmbedder
	svc      *Service
	kb       *core.KnowledgeBase
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	kb, err := stores.KnowledgeBases.AddKnowledgeBase(context.Background(), &core.KnowledgeBase{Name: "docs"})
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	opts = append([]Option{WithRetryPolicy(retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond})}, opts...)
	svc, err := NewService(stores.Documents, stores.Chunks, embedder, opts...)
	require.NoError(t, err)
	return &fixture{stores: stores, embedder: embedder, svc: svc, kb: kb}
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer stores.Close()
	embedder := mock.NewMockEmbedder()

	_, err = NewService(nil, stores.Chunks, embedder)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)
	_, err = NewService(stores.Documents, nil, embedder)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)
	_, err = NewService(stores.Documents, stores.Chunks, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewService(stores.Documents, stores.Chunks, embedder, WithChunking(100, 100))
	assert.Error(t, err)
	_, err = NewService(stores.Documents, stores.Chunks, embedder, WithEmbedBatchSize(0))
	assert.Error(t, err)
}

func TestCreateAndFindBySource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.svc.CreateDocument(ctx, &core.Document{
		KnowledgeBaseID: f.kb.ID,
		SourceID:        "drive:123",
		Content:         "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, doc.Status)
	assert.Equal(t, core.ContentHash([]byte("hello")), doc.ContentHash)

	found, err := f.svc.FindBySource(ctx, f.kb.ID, "drive:123")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, doc.ID, found.ID)

	missing, err := f.svc.FindBySource(ctx, f.kb.ID, "drive:999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	none, err := f.svc.FindBySource(ctx, f.kb.ID, "")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestProcessAndUpdateChunks(t *testing.T) {
	f := newFixture(t, WithChunking(50, 10), WithEmbedBatchSize(2))
	ctx := context.Background()

	content := strings.Repeat("The pipeline splits long text into overlapping chunks. ", 10)
	doc, err := f.svc.CreateDocument(ctx, &core.Document{
		KnowledgeBaseID: f.kb.ID,
		Status:          core.StatusEmbedding,
		Content:         content,
	})
	require.NoError(t, err)

	updated, err := f.svc.ProcessAndUpdateChunks(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, updated.Status)
	assert.Equal(t, 80, updated.WordCount)
	assert.Equal(t, len(strings.TrimSpace(content)), updated.CharacterCount)
	assert.Greater(t, updated.ChunkCount, 5)

	chunks, err := f.stores.Chunks.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, updated.ChunkCount)
	for i, c := range chunks {
		assert.Equal(t, i, c.Position)
		assert.Len(t, c.Vector, mock.DefaultDimensions)
		assert.LessOrEqual(t, len(c.Content), 50)
	}
	assert.Equal(t, (updated.ChunkCount+1)/2, f.embedder.CallCount())

	// Reprocessing converges on the same chunk set
	again, err := f.svc.ProcessAndUpdateChunks(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, updated.ChunkCount, again.ChunkCount)
	chunks, err = f.stores.Chunks.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, updated.ChunkCount)
}

func TestProcessAndUpdateChunksClearsPreviousError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.svc.CreateDocument(ctx, &core.Document{KnowledgeBaseID: f.kb.ID, Content: "short text"})
	require.NoError(t, err)
	doc.MarkError(core.FailureTransient, "embedding service down")

	updated, err := f.svc.ProcessAndUpdateChunks(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, core.FailureNone, updated.FailureKind)
	assert.Empty(t, updated.ProcessingError)
	assert.Equal(t, 1, updated.ChunkCount)
}

func TestProcessAndUpdateChunksFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("empty content is deterministic", func(t *testing.T) {
		f := newFixture(t)
		doc, err := f.svc.CreateDocument(ctx, &core.Document{KnowledgeBaseID: f.kb.ID})
		require.NoError(t, err)

		_, err = f.svc.ProcessAndUpdateChunks(ctx, doc)
		assert.ErrorIs(t, err, ErrNoContent)
		assert.Equal(t, core.FailureDeterministic, core.ClassifyFailure(err))
		assert.Equal(t, 0, f.embedder.CallCount())
	})

	t.Run("embedder failure is transient and retried", func(t *testing.T) {
		f := newFixture(t)
		boom := errors.New("connection refused")
		f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, boom
		}
		doc, err := f.svc.CreateDocument(ctx, &core.Document{KnowledgeBaseID: f.kb.ID, Content: "some text"})
		require.NoError(t, err)

		_, err = f.svc.ProcessAndUpdateChunks(ctx, doc)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, core.FailureTransient, core.ClassifyFailure(err))
		assert.Equal(t, 2, f.embedder.CallCount())

		chunks, err := f.stores.Chunks.GetChunks(ctx, doc.ID)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("short vector response", func(t *testing.T) {
		f := newFixture(t)
		f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{}, nil
		}
		doc, err := f.svc.CreateDocument(ctx, &core.Document{KnowledgeBaseID: f.kb.ID, Content: "some text"})
		require.NoError(t, err)

		_, err = f.svc.ProcessAndUpdateChunks(ctx, doc)
		assert.ErrorIs(t, err, ErrVectorMismatch)
	})
}

func TestProcessAndUpdateChunksDetectsReingest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.svc.CreateDocument(ctx, &core.Document{
		KnowledgeBaseID: f.kb.ID,
		Status:          core.StatusEmbedding,
		Content:         "first revision",
	})
	require.NoError(t, err)

	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		newer := *doc
		newer.Content = "second revision"
		newer.ContentHash = core.ContentHash([]byte(newer.Content))
		if _, err := f.stores.Documents.UpdateDocument(ctx, &newer); err != nil {
			return nil, err
		}
		return [][]float32{make([]float32, mock.DefaultDimensions)}, nil
	}

	_, err = f.svc.ProcessAndUpdateChunks(ctx, doc)
	assert.ErrorIs(t, err, ErrSuperseded)

	chunks, err := f.stores.Chunks.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	stored, err := f.stores.Documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "second revision", stored.Content)
	assert.Equal(t, core.StatusEmbedding, stored.Status)
}

func TestMarkFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.svc.CreateDocument(ctx, &core.Document{KnowledgeBaseID: f.kb.ID, Status: core.StatusOCR})
	require.NoError(t, err)

	cause := core.Deterministic("ocr", errors.New("unsupported file type"))
	require.NoError(t, f.svc.MarkFailed(ctx, doc, cause))

	stored, err := f.stores.Documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, stored.Status)
	assert.Equal(t, core.FailureDeterministic, stored.FailureKind)
	assert.Equal(t, "ocr: unsupported file type", stored.ProcessingError)
}
