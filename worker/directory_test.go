package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/docflow/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryPlugin_Fetch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("# Beta"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "huge.txt"), make([]byte, 2048), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	p := &DirectoryPlugin{MaxFileSize: 1024}
	feed := &core.Feed{ID: "feed-1"}

	items, err := p.Fetch(context.Background(), feed, map[string]any{"path": dir})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a.txt", items[0].SourceID)
	assert.Equal(t, "b.md", items[1].SourceID)
	assert.Equal(t, core.ContentHash([]byte("alpha")), items[0].SourceHash)
	assert.Equal(t, "feed-1", items[0].Metadata["feed_id"])

	items, err = p.Fetch(context.Background(), feed, map[string]any{"path": dir, "pattern": "*.md"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b.md", items[0].Filename)
}

func TestDirectoryPlugin_Errors(t *testing.T) {
	p := &DirectoryPlugin{}
	feed := &core.Feed{ID: "feed-1"}

	_, err := p.Fetch(context.Background(), feed, map[string]any{})
	assert.Error(t, err)

	_, err = p.Fetch(context.Background(), feed, map[string]any{"path": t.TempDir(), "pattern": "["})
	assert.Error(t, err)

	_, err = p.Fetch(context.Background(), feed, map[string]any{"path": filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}
