// Package extract turns staged file bytes into plain text for the OCR stage.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

var (
	// ErrUnsupportedType indicates no loader handles the file's type.
	ErrUnsupportedType = errors.New("unsupported content type")
	// ErrEmptyText indicates extraction succeeded but produced no text.
	ErrEmptyText = errors.New("no text extracted")
	// ErrMalformed indicates the bytes do not parse as their declared type.
	ErrMalformed = errors.New("malformed content")
)

// TextExtractor extracts text from raw bytes. Errors wrapping ErrUnsupportedType,
// ErrEmptyText or ErrMalformed depend only on the input and will recur.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, filename, mimeType string) (string, error)
}

// Loader produces documents from a file's bytes.
type Loader func(ctx context.Context, data []byte) ([]schema.Document, error)

// Option configures an Extractor.
type Option func(*Extractor) error

// WithLoader registers loader for mimeType, replacing any existing one.
func WithLoader(mimeType string, loader Loader) Option {
	return func(e *Extractor) error {
		if loader == nil {
			return errors.New("loader cannot be nil")
		}
		e.loaders[normalizeType(mimeType)] = loader
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		e.logger = logger
		return nil
	}
}

// Extractor dispatches on content type to langchaingo document loaders.
type Extractor struct {
	loaders map[string]Loader
	logger  *slog.Logger
}

var _ TextExtractor = (*Extractor)(nil)

// New creates an Extractor handling plain text, markdown, CSV, JSON, HTML and PDF.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{
		loaders: map[string]Loader{
			"text/plain":       loadText,
			"text/markdown":    loadText,
			"text/csv":         loadText,
			"application/json": loadJSON,
			"text/html":        loadHTML,
			"application/pdf":  loadPDF,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "extractor")
	return e, nil
}

// Extract resolves the content type from mimeType, falling back to the
// filename's extension, and joins the loaded documents' text.
func (e *Extractor) Extract(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	contentType := e.resolveType(filename, mimeType)
	loader, ok := e.loaders[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedType, mimeType, filename)
	}

	docs, err := loader(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s: %w", ErrMalformed, filename, err)
	}

	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if text := strings.TrimSpace(doc.PageContent); text != "" {
			parts = append(parts, text)
		}
	}
	text := strings.Join(parts, "\n\n")
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyText, filename)
	}
	e.logger.Debug("extracted text", "filename", filename, "type", contentType, "pages", len(docs), "chars", len(text))
	return text, nil
}

func (e *Extractor) resolveType(filename, mimeType string) string {
	if t := normalizeType(mimeType); t != "" && t != "application/octet-stream" {
		if _, ok := e.loaders[t]; ok {
			return t
		}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt", ".text", ".log":
		return "text/plain"
	}
	if t := normalizeType(mime.TypeByExtension(ext)); t != "" {
		return t
	}
	return normalizeType(mimeType)
}

func normalizeType(mimeType string) string {
	t, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return t
}

func loadText(ctx context.Context, data []byte) ([]schema.Document, error) {
	return documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
}

func loadHTML(ctx context.Context, data []byte) ([]schema.Document, error) {
	return documentloaders.NewHTML(bytes.NewReader(data)).Load(ctx)
}

func loadPDF(ctx context.Context, data []byte) ([]schema.Document, error) {
	return documentloaders.NewPDF(bytes.NewReader(data), int64(len(data))).Load(ctx)
}

// loadJSON indents the document so chunking sees one field per line.
func loadJSON(ctx context.Context, data []byte) ([]schema.Document, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	return loadText(ctx, buf.Bytes())
}
