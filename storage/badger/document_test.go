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


package badger

import (
	"context"
	"testing"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentAddAndFindBySource(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	doc, err := stores.Documents.AddDocument(ctx, &core.Document{
		KnowledgeBaseID: "kb1",
		SourceID:        "drive:42",
		Title:           "Quarterly report",
		Status:          core.StatusPending,
		Metadata:        map[string]string{"owner": "finance"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)

	found, err := stores.Documents.FindDocumentBySource(ctx, "kb1", "drive:42")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, found.ID)
	assert.Equal(t, "finance", found.Metadata["owner"])

	// Same source in another knowledge base is a different document
	_, err = stores.Documents.FindDocumentBySource(ctx, "kb2", "drive:42")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = stores.Documents.AddDocument(ctx, &core.Document{
		KnowledgeBaseID: "kb1",
		SourceID:        "drive:42",
		Status:          core.StatusPending,
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestDocumentUpdateMovesSourceIndex(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	doc, err := stores.Documents.AddDocument(ctx, &core.Document{
		KnowledgeBaseID: "kb1",
		SourceID:        "old",
		Status:          core.StatusPending,
	})
	require.NoError(t, err)

	doc.SourceID = "new"
	doc.Status = core.StatusProcessed
	doc.Profile = &core.Profile{Summary: "short", Topics: []string{"a", "b"}, Language: "en"}
	_, err = stores.Documents.UpdateDocument(ctx, doc)
	require.NoError(t, err)

	_, err = stores.Documents.FindDocumentBySource(ctx, "kb1", "old")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	found, err := stores.Documents.FindDocumentBySource(ctx, "kb1", "new")
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, found.Status)
	require.NotNil(t, found.Profile)
	assert.Equal(t, []string{"a", "b"}, found.Profile.Topics)
}

func TestDocumentListAndDelete(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		doc, err := stores.Documents.AddDocument(ctx, &core.Document{KnowledgeBaseID: "kb1", Status: core.StatusPending})
		require.NoError(t, err)
		ids = append(ids, doc.ID)
	}
	_, err := stores.Documents.AddDocument(ctx, &core.Document{KnowledgeBaseID: "kb2", Status: core.StatusPending})
	require.NoError(t, err)

	docs, err := stores.Documents.ListDocuments(ctx, "kb1")
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	require.NoError(t, stores.Chunks.ReplaceChunks(ctx, ids[0], []*core.Chunk{{Content: "x"}}))
	require.NoError(t, stores.Documents.DeleteDocument(ctx, ids[0]))

	_, err = stores.Documents.GetDocument(ctx, ids[0])
	assert.ErrorIs(t, err, storage.ErrNotFound)
	chunks, err := stores.Chunks.GetChunks(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, chunks)

	docs, err = stores.Documents.ListDocuments(ctx, "kb1")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestDocumentValidation(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	_, err := stores.Documents.AddDocument(ctx, &core.Document{Status: core.StatusPending})
	assert.ErrorIs(t, err, core.ErrInvalidDocument)

	_, err = stores.Documents.AddDocument(ctx, &core.Document{KnowledgeBaseID: "kb1", Status: "BOGUS"})
	assert.ErrorIs(t, err, core.ErrInvalidDocument)

	_, err = stores.Documents.UpdateDocument(ctx, &core.Document{ID: "nope", KnowledgeBaseID: "kb1", Status: core.StatusPending})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestChunkReplace(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	first := []*core.Chunk{
		{Content: "one", Vector: []float32{0.1, 0.2}},
		{Content: "two", Vector: []float32{0.3, 0.4}},
		{Content: "three", Vector: []float32{0.5, 0.6}},
	}
	require.NoError(t, stores.Chunks.ReplaceChunks(ctx, "doc1", first))

	chunks, err := stores.Chunks.GetChunks(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Position)
		assert.Equal(t, "doc1", c.DocumentID)
	}
	assert.Equal(t, []float32{0.5, 0.6}, chunks[2].Vector)

	require.NoError(t, stores.Chunks.ReplaceChunks(ctx, "doc1", []*core.Chunk{{Content: "only"}}))
	chunks, err = stores.Chunks.GetChunks(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "only", chunks[0].Content)

	require.NoError(t, stores.Chunks.DeleteChunks(ctx, "doc1"))
	chunks, err = stores.Chunks.GetChunks(ctx, "doc1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
