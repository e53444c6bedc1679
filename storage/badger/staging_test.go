package badger

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagingRoundTripLargeFile(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	data := make([]byte, 10<<20)
	_, err := rand.Read(data)
	require.NoError(t, err)

	key, err := stores.Staging.StageFile(ctx, data, "scan.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, key)

	got, err := stores.Staging.RetrieveFile(ctx, key)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got), "retrieved bytes differ from staged bytes")
}

func TestStagingSmallAndEmpty(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	key, err := stores.Staging.StageFile(ctx, []byte("hello"), "a.txt")
	require.NoError(t, err)
	got, err := stores.Staging.RetrieveFile(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	key, err = stores.Staging.StageFile(ctx, nil, "empty.txt")
	require.NoError(t, err)
	got, err = stores.Staging.RetrieveFile(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStagingDelete(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	key, err := stores.Staging.StageFile(ctx, bytes.Repeat([]byte("x"), stagingPartSize*2+1), "b.bin")
	require.NoError(t, err)

	require.NoError(t, stores.Staging.DeleteStagedFile(ctx, key))
	_, err = stores.Staging.RetrieveFile(ctx, key)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Deleting twice or deleting an unknown key is fine
	require.NoError(t, stores.Staging.DeleteStagedFile(ctx, key))
	require.NoError(t, stores.Staging.DeleteStagedFile(ctx, "never-staged"))
}

func TestStagingMissingKey(t *testing.T) {
	stores := newTestStores(t)
	_, err := stores.Staging.RetrieveFile(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAttachmentExpiry(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()
	now := time.Now()

	expired, err := stores.Attachments.AddAttachment(ctx, &core.Attachment{
		StagingKey: "k1",
		Filename:   "old.png",
		Size:       12,
		ExpiresAt:  now.Add(-time.Minute),
	})
	require.NoError(t, err)
	_, err = stores.Attachments.AddAttachment(ctx, &core.Attachment{
		StagingKey: "k2",
		Filename:   "new.png",
		ExpiresAt:  now.Add(time.Hour),
	})
	require.NoError(t, err)

	list, err := stores.Attachments.ListExpiredAttachments(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, expired.ID, list[0].ID)
	assert.Equal(t, int64(12), list[0].Size)

	require.NoError(t, stores.Attachments.DeleteAttachment(ctx, expired.ID))
	list, err = stores.Attachments.ListExpiredAttachments(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, stores.Attachments.DeleteAttachment(ctx, expired.ID), storage.ErrNotFound)
	_, err = stores.Attachments.GetAttachment(ctx, expired.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
