package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/ai/mock"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/documents"
	"github.com/poiesic/docflow/extract"
	"github.com/poiesic/docflow/ingestion"
	"github.com/poiesic/docflow/queue"
	"github.com/poiesic/docflow/queue/memory"
	"github.com/poiesic/docflow/retry"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/storage/badger"
	"github.com/poiesic/docflow/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyStaging counts retrievals and can fail deletes or retrievals.
type spyStaging struct {
	storage.StagingStore
	retrieves    atomic.Int32
	deletes      atomic.Int32
	failDelete   bool
	failRetrieve error
}

func (s *spyStaging) RetrieveFile(ctx context.Context, key string) ([]byte, error) {
	s.retrieves.Add(1)
	if s.failRetrieve != nil {
		return nil, s.failRetrieve
	}
	return s.StagingStore.RetrieveFile(ctx, key)
}

func (s *spyStaging) DeleteStagedFile(ctx context.Context, key string) error {
	s.deletes.Add(1)
	if s.failDelete {
		return errors.New("staging bucket unavailable")
	}
	return s.StagingStore.DeleteStagedFile(ctx, key)
}

type fixture struct {
	stores   *badger.Stores
	backend  *memory.Backend
	staging  *spyStaging
	embedder *mock.MockEmbedder
	profiler *mock.MockProfiler
	ingest   *ingestion.Service
	deps     Deps
	worker   *Worker
	kb       *core.KnowledgeBase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	kb, err := stores.KnowledgeBases.AddKnowledgeBase(ctx, &core.KnowledgeBase{Name: "support", ProfilingEnabled: true})
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	docs, err := documents.NewService(stores.Documents, stores.Chunks, embedder,
		documents.WithChunking(200, 20),
		documents.WithRetryPolicy(retry.Policy{MaxAttempts: 1}))
	require.NoError(t, err)

	backend := memory.New()
	staging := &spyStaging{StagingStore: stores.Staging}
	ingest, err := ingestion.NewService(stores.KnowledgeBases, docs, staging, backend)
	require.NoError(t, err)

	extractor, err := extract.New()
	require.NoError(t, err)
	profiler := mock.NewMockProfiler()

	deps := Deps{
		KnowledgeBases: stores.KnowledgeBases,
		Documents:      docs,
		Staging:        staging,
		Backend:        backend,
		Profiling:      true,
	}
	w, err := New(backend,
		WithHandler(workload.KindOCR, NewOCRHandler(deps, extractor)),
		WithHandler(workload.KindEmbed, NewEmbedHandler(deps)),
		WithHandler(workload.KindProfiling, NewProfileHandler(deps, profiler)),
		WithConcurrency(2),
	)
	require.NoError(t, err)
	t.Cleanup(w.Release)

	return &fixture{
		stores:   stores,
		backend:  backend,
		staging:  staging,
		embedder: embedder,
		profiler: profiler,
		ingest:   ingest,
		deps:     deps,
		worker:   w,
		kb:       kb,
	}
}

func (f *fixture) document(t *testing.T, id string) *core.Document {
	t.Helper()
	doc, err := f.stores.Documents.GetDocument(context.Background(), id)
	require.NoError(t, err)
	return doc
}

func (f *fixture) pending(t *testing.T) int {
	t.Helper()
	total := 0
	for _, name := range workload.Default().Queues() {
		n, err := f.backend.QueueLength(context.Background(), name)
		require.NoError(t, err)
		total += n
	}
	return total
}

func (f *fixture) ingestFile(t *testing.T, body string) *ingestion.Result {
	t.Helper()
	res, err := f.ingest.IngestDocument(context.Background(), &ingestion.DocumentRequest{
		KnowledgeBaseID: f.kb.ID,
		SourceID:        "notes",
		Filename:        "notes.txt",
		Data:            []byte(body),
	})
	require.NoError(t, err)
	return res
}

const notesBody = "Refunds are issued within five business days. Contact billing for expedited handling."

func TestNewRequiresBackend(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrBackendRequired)

	_, err = New(memory.New(), WithConcurrency(0))
	assert.Error(t, err)

	_, err = New(memory.New(), WithHandler(workload.KindOCR, nil))
	assert.Error(t, err)
}

func TestNewDefaultsToRouterQueues(t *testing.T) {
	w, err := New(memory.New())
	require.NoError(t, err)
	defer w.Release()
	assert.Equal(t, workload.Default().Queues(), w.Queues())

	w2, err := New(memory.New(), WithQueues("ocr"))
	require.NoError(t, err)
	defer w2.Release()
	assert.Equal(t, []string{"ocr"}, w2.Queues())
}

func TestPipelineRunsToProcessed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.ingestFile(t, notesBody)

	n, err := f.worker.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "ocr, embed and profiling jobs")

	doc := f.document(t, res.DocumentID)
	assert.Equal(t, core.StatusProcessed, doc.Status)
	assert.Equal(t, notesBody, doc.Content)
	assert.Positive(t, doc.ChunkCount)
	assert.Equal(t, core.FailureNone, doc.FailureKind)
	require.NotNil(t, doc.Profile)
	assert.Equal(t, "Refunds are issued within five business days.", doc.Profile.Summary)
	assert.False(t, doc.Profile.ProfiledAt.IsZero())

	chunks, err := f.stores.Chunks.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, doc.ChunkCount)
	assert.Zero(t, f.pending(t))

	// The staged bytes are released once text is extracted.
	assert.Equal(t, int32(1), f.staging.retrieves.Load())
	assert.Equal(t, int32(1), f.staging.deletes.Load())
}

func TestPipelineSkipsProfilingWhenKnowledgeBaseOptsOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.kb.ProfilingEnabled = false
	_, err := f.stores.KnowledgeBases.UpdateKnowledgeBase(ctx, f.kb)
	require.NoError(t, err)

	res := f.ingestFile(t, notesBody)
	n, err := f.worker.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Nil(t, f.document(t, res.DocumentID).Profile)
}

func TestOCRDiscardsJobWhenKnowledgeBaseDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.staging.failDelete = true
	res := f.ingestFile(t, notesBody)

	require.NoError(t, f.stores.KnowledgeBases.DeleteKnowledgeBase(ctx, f.kb.ID))

	n, err := f.worker.Drain(ctx)
	require.NoError(t, err, "a failing staged-file delete must not fail the job")
	assert.Equal(t, 1, n)

	assert.Zero(t, f.staging.retrieves.Load(), "staged bytes must not be read")
	assert.Equal(t, int32(1), f.staging.deletes.Load())
	assert.Zero(t, f.embedder.CallCount())
	assert.Zero(t, f.pending(t), "job acknowledged and nothing chained")
	assert.Equal(t, core.StatusPending, f.document(t, res.DocumentID).Status)
}

func TestOCRDiscardsJobWhenDocumentDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.ingestFile(t, notesBody)
	require.NoError(t, f.stores.Documents.DeleteDocument(ctx, res.DocumentID))

	ok, err := f.worker.ProcessOne(ctx, "ocr")
	require.True(t, ok)
	require.NoError(t, err)
	assert.Zero(t, f.staging.retrieves.Load())
	assert.Zero(t, f.pending(t))
}

func TestEmbedDiscardsJobWhenKnowledgeBaseDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.ingest.IngestText(ctx, &ingestion.TextRequest{
		KnowledgeBaseID: f.kb.ID,
		Content:         notesBody,
	})
	require.NoError(t, err)
	require.NoError(t, f.stores.KnowledgeBases.DeleteKnowledgeBase(ctx, f.kb.ID))

	n, err := f.worker.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, f.embedder.CallCount())
	assert.Zero(t, f.pending(t))
	assert.Equal(t, core.StatusEmbedding, f.document(t, res.DocumentID).Status)
}

func TestOCRRedeliveryAfterExtractionOnlyReenqueuesEmbedding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.ingestFile(t, notesBody)

	// Simulate a crash after extraction was saved but before the job was acknowledged.
	doc := f.document(t, res.DocumentID)
	doc.Content = notesBody
	doc.Status = core.StatusEmbedding
	_, err := f.stores.Documents.UpdateDocument(ctx, doc)
	require.NoError(t, err)

	ok, err := f.worker.ProcessOne(ctx, "ocr")
	require.True(t, ok)
	require.NoError(t, err)
	assert.Zero(t, f.staging.retrieves.Load())

	jobs, err := f.backend.Peek(ctx, "embed", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, jobs[0].ID, f.document(t, res.DocumentID).LastJobID)
}

func TestStagesAreIdempotentOnceProcessed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.ingestFile(t, notesBody)
	_, err := f.worker.Drain(ctx)
	require.NoError(t, err)
	calls := f.embedder.CallCount()

	// Redeliver both document stages for the processed document.
	_, err = workload.EnqueueJob(ctx, f.backend, workload.KindOCR, workload.OCRPayload{
		DocumentID: res.DocumentID, KnowledgeBaseID: f.kb.ID, StagingKey: "gone", Filename: "notes.txt",
	}.Payload())
	require.NoError(t, err)
	_, err = workload.EnqueueJob(ctx, f.backend, workload.KindEmbed, workload.EmbedPayload{
		DocumentID: res.DocumentID, KnowledgeBaseID: f.kb.ID,
	}.Payload())
	require.NoError(t, err)

	n, err := f.worker.Drain(ctx, "ocr", "embed")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, calls, f.embedder.CallCount())
	assert.Equal(t, core.StatusProcessed, f.document(t, res.DocumentID).Status)
	assert.Zero(t, f.pending(t))
}

func TestExtractionFailureIsDeterministic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.ingest.IngestDocument(ctx, &ingestion.DocumentRequest{
		KnowledgeBaseID: f.kb.ID,
		Filename:        "archive.bin",
		MimeType:        "application/x-unknown",
		Data:            []byte{0x00, 0x01},
	})
	require.NoError(t, err)

	ok, err := f.worker.ProcessOne(ctx, "ocr")
	require.True(t, ok)
	assert.ErrorIs(t, err, extract.ErrUnsupportedType)

	doc := f.document(t, res.DocumentID)
	assert.Equal(t, core.StatusError, doc.Status)
	assert.Equal(t, core.FailureDeterministic, doc.FailureKind)
	assert.Contains(t, doc.ProcessingError, "ocr")
	assert.Equal(t, 1, f.pending(t), "left leased for redelivery")
}

func TestRetrieveFailureIsTransient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.staging.failRetrieve = errors.New("timeout reading blob")
	res := f.ingestFile(t, notesBody)

	ok, err := f.worker.ProcessOne(ctx, "ocr")
	require.True(t, ok)
	require.Error(t, err)

	doc := f.document(t, res.DocumentID)
	assert.Equal(t, core.StatusError, doc.Status)
	assert.Equal(t, core.FailureTransient, doc.FailureKind)
	assert.Contains(t, doc.ProcessingError, "failed to retrieve staged file")
	assert.Zero(t, f.embedder.CallCount())
}

func TestProfilingFailureKeepsDocumentProcessed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.profiler.ProfileDocumentFunc = func(ctx context.Context, title, text string) (*ai.DocumentProfile, error) {
		return nil, errors.New("model overloaded")
	}
	res := f.ingestFile(t, notesBody)

	_, err := f.worker.Drain(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")

	doc := f.document(t, res.DocumentID)
	assert.Equal(t, core.StatusProcessed, doc.Status)
	assert.Nil(t, doc.Profile)
	n, err := f.backend.QueueLength(ctx, "profiling")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWorkerAcknowledgesInvalidPayload(t *testing.T) {
	backend := memory.New()
	w, err := New(backend, WithHandler(workload.KindOCR, NewOCRHandler(Deps{}, nil)))
	require.NoError(t, err)
	defer w.Release()

	job := queue.NewJob("ocr", queue.NewPayload().Set(workload.ActionKey, workload.ActionExtractText))
	require.NoError(t, backend.Enqueue(context.Background(), job))

	ok, err := w.ProcessOne(context.Background(), "ocr")
	require.True(t, ok)
	assert.ErrorIs(t, err, workload.ErrInvalidPayload)

	n, err := backend.QueueLength(context.Background(), "ocr")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWorkerAcknowledgesUnknownAction(t *testing.T) {
	backend := memory.New()
	w, err := New(backend)
	require.NoError(t, err)
	defer w.Release()

	job := queue.NewJob("embed", queue.NewPayload().Set(workload.ActionKey, "reticulate"))
	require.NoError(t, backend.Enqueue(context.Background(), job))

	ok, err := w.ProcessOne(context.Background(), "embed")
	require.True(t, ok)
	assert.ErrorIs(t, err, ErrUnknownAction)
	n, _ := backend.QueueLength(context.Background(), "embed")
	assert.Zero(t, n)
}

func embedJob(t *testing.T, backend queue.Backend) *queue.Job {
	t.Helper()
	job, err := workload.EnqueueJob(context.Background(), backend, workload.KindEmbed,
		workload.EmbedPayload{DocumentID: "d1", KnowledgeBaseID: "kb1"}.Payload())
	require.NoError(t, err)
	return job
}

func TestWorkerLeavesFailedJobLeased(t *testing.T) {
	backend := memory.New()
	w, err := New(backend, WithHandler(workload.KindEmbed, HandlerFunc(func(ctx context.Context, job *queue.Job) (Result, error) {
		return Result{}, errors.New("vector store unavailable")
	})))
	require.NoError(t, err)
	defer w.Release()
	embedJob(t, backend)

	ok, err := w.ProcessOne(context.Background(), "embed")
	require.True(t, ok)
	require.Error(t, err)

	n, _ := backend.QueueLength(context.Background(), "embed")
	assert.Equal(t, 1, n)
	ok, err = w.ProcessOne(context.Background(), "embed")
	assert.False(t, ok, "leased until the visibility timeout")
	assert.NoError(t, err)
}

func TestWorkerRecoversHandlerPanic(t *testing.T) {
	backend := memory.New()
	w, err := New(backend, WithHandler(workload.KindEmbed, HandlerFunc(func(ctx context.Context, job *queue.Job) (Result, error) {
		panic("nil map")
	})))
	require.NoError(t, err)
	defer w.Release()
	embedJob(t, backend)

	ok, err := w.ProcessOne(context.Background(), "embed")
	require.True(t, ok)
	assert.ErrorIs(t, err, ErrHandlerPanic)
}

func TestWorkerWithoutHandlerLeavesJob(t *testing.T) {
	backend := memory.New()
	w, err := New(backend)
	require.NoError(t, err)
	defer w.Release()
	embedJob(t, backend)

	ok, err := w.ProcessOne(context.Background(), "embed")
	require.True(t, ok)
	assert.ErrorIs(t, err, ErrNoHandler)
	n, _ := backend.QueueLength(context.Background(), "embed")
	assert.Equal(t, 1, n)
}

func TestWorkerAcknowledgesCancelledJob(t *testing.T) {
	backend := memory.New()
	w, err := New(backend, WithHandler(workload.KindEmbed, HandlerFunc(func(ctx context.Context, job *queue.Job) (Result, error) {
		return Cancelled("owner gone"), nil
	})))
	require.NoError(t, err)
	defer w.Release()
	embedJob(t, backend)

	ok, err := w.ProcessOne(context.Background(), "embed")
	require.True(t, ok)
	require.NoError(t, err)
	n, _ := backend.QueueLength(context.Background(), "embed")
	assert.Zero(t, n)
}

func TestWorkerRunProcessesUntilCancelled(t *testing.T) {
	backend := memory.New()
	var (
		mu   sync.Mutex
		seen []string
	)
	w, err := New(backend,
		WithQueues("embed"),
		WithConcurrency(3),
		WithPollTimeout(20*time.Millisecond),
		WithHandler(workload.KindEmbed, HandlerFunc(func(ctx context.Context, job *queue.Job) (Result, error) {
			mu.Lock()
			seen = append(seen, job.ID)
			mu.Unlock()
			return Success(nil), nil
		})),
	)
	require.NoError(t, err)
	defer w.Release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for range 10 {
		embedJob(t, backend)
	}
	assert.Eventually(t, func() bool {
		n, _ := backend.QueueLength(context.Background(), "embed")
		return n == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 10)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "cancelled", OutcomeCancelled.String())
	assert.True(t, strings.HasPrefix(Outcome(0).String(), "unknown"))
}
