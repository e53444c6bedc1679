package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStores(t *testing.T) *Stores {
	t.Helper()
	stores, err := NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return stores
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestKnowledgeBaseCRUD(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	repo := stores.KnowledgeBases

	kb, err := repo.AddKnowledgeBase(ctx, &core.KnowledgeBase{Name: "handbook", TenantID: "acme"})
	require.NoError(t, err)
	require.NotEmpty(t, kb.ID)
	assert.False(t, kb.CreatedAt.IsZero())

	got, err := repo.GetKnowledgeBase(ctx, kb.ID)
	require.NoError(t, err)
	assert.Equal(t, "handbook", got.Name)
	assert.Equal(t, "acme", got.TenantID)

	got.ProfilingEnabled = true
	_, err = repo.UpdateKnowledgeBase(ctx, got)
	require.NoError(t, err)

	got, err = repo.GetKnowledgeBase(ctx, kb.ID)
	require.NoError(t, err)
	assert.True(t, got.ProfilingEnabled)

	_, err = repo.AddKnowledgeBase(ctx, &core.KnowledgeBase{Name: "wiki"})
	require.NoError(t, err)
	all, err := repo.ListKnowledgeBases(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repo.DeleteKnowledgeBase(ctx, kb.ID))
	_, err = repo.GetKnowledgeBase(ctx, kb.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteKnowledgeBase(ctx, kb.ID), storage.ErrNotFound)
}

func TestKnowledgeBaseValidation(t *testing.T) {
	stores := newTestStores(t)
	_, err := stores.KnowledgeBases.AddKnowledgeBase(context.Background(), &core.KnowledgeBase{})
	assert.ErrorIs(t, err, core.ErrInvalidKnowledgeBase)

	_, err = stores.KnowledgeBases.UpdateKnowledgeBase(context.Background(), &core.KnowledgeBase{ID: "missing", Name: "x"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
