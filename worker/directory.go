package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/poiesic/docflow/core"
)

// DirectoryPluginName is the registry name of DirectoryPlugin.
const DirectoryPluginName = "directory"

// DirectoryPlugin is a FeedPlugin that reads the files of a local directory.
//
// Params:
//
//	path     directory to read (required)
//	pattern  glob matched against file names, default "*"
//
// Each regular file becomes one item keyed by its name, in name order.
// Re-running the feed reingests only files whose bytes changed.
type DirectoryPlugin struct {
	// MaxFileSize skips larger files when positive.
	MaxFileSize int64
}

var _ FeedPlugin = (*DirectoryPlugin)(nil)

func (p *DirectoryPlugin) Name() string { return DirectoryPluginName }

func (p *DirectoryPlugin) Fetch(ctx context.Context, feed *core.Feed, params map[string]any) ([]FeedItem, error) {
	dir, _ := params["path"].(string)
	if dir == "" {
		return nil, errors.New("directory plugin: path parameter is required")
	}
	pattern, _ := params["pattern"].(string)
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("directory plugin: bad pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("directory plugin: %w", err)
	}
	var items []FeedItem
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(pattern, entry.Name()); !ok {
			continue
		}
		if p.MaxFileSize > 0 {
			info, err := entry.Info()
			if err != nil || info.Size() > p.MaxFileSize {
				continue
			}
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("directory plugin: %w", err)
		}
		if len(data) == 0 {
			continue
		}
		items = append(items, FeedItem{
			SourceID:   entry.Name(),
			Title:      entry.Name(),
			Filename:   entry.Name(),
			Data:       data,
			SourceHash: core.ContentHash(data),
			Metadata:   map[string]string{"feed_id": feed.ID},
		})
	}
	return items, nil
}
