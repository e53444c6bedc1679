package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

func newExtractor(t *testing.T, opts ...Option) *Extractor {
	t.Helper()
	e, err := New(opts...)
	require.NoError(t, err)
	return e
}

func TestExtractPlainText(t *testing.T) {
	e := newExtractor(t)
	text, err := e.Extract(context.Background(), []byte("  hello world \n"), "note.txt", "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestExtractResolvesByExtension(t *testing.T) {
	e := newExtractor(t)
	ctx := context.Background()

	text, err := e.Extract(ctx, []byte("# Title\n\nbody"), "README.md", "application/octet-stream")
	require.NoError(t, err)
	assert.Contains(t, text, "# Title")

	text, err = e.Extract(ctx, []byte(`{"a":1}`), "data.json", "")
	require.NoError(t, err)
	assert.Contains(t, text, `"a": 1`)
}

func TestExtractHTML(t *testing.T) {
	e := newExtractor(t)
	text, err := e.Extract(context.Background(),
		[]byte("<html><body><h1>Hello</h1><p>from the page</p></body></html>"), "page.html", "text/html")
	require.NoError(t, err)
	assert.Contains(t, text, "Hello")
	assert.Contains(t, text, "from the page")
	assert.NotContains(t, text, "<p>")
}

func TestExtractErrors(t *testing.T) {
	e := newExtractor(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		data     string
		filename string
		mimeType string
		want     error
	}{
		{"unsupported", "\x00\x01", "image.bmp", "image/bmp", ErrUnsupportedType},
		{"unknown extension", "abc", "blob.xyz123", "", ErrUnsupportedType},
		{"malformed json", "{not json", "bad.json", "application/json", ErrMalformed},
		{"whitespace only", " \n\t ", "empty.txt", "text/plain", ErrEmptyText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(ctx, []byte(tt.data), tt.filename, tt.mimeType)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExtractCustomLoader(t *testing.T) {
	calls := 0
	e := newExtractor(t, WithLoader("image/png", func(ctx context.Context, data []byte) ([]schema.Document, error) {
		calls++
		return []schema.Document{{PageContent: "page one"}, {PageContent: ""}, {PageContent: "page two"}}, nil
	}))

	text, err := e.Extract(context.Background(), []byte{0x89}, "scan.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "page one\n\npage two", text)
	assert.Equal(t, 1, calls)
}

func TestExtractLoaderFailureIsMalformed(t *testing.T) {
	e := newExtractor(t, WithLoader("text/plain", func(ctx context.Context, data []byte) ([]schema.Document, error) {
		return nil, errors.New("decoder exploded")
	}))
	_, err := e.Extract(context.Background(), []byte("x"), "a.txt", "text/plain")
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorContains(t, err, "decoder exploded")
}

func TestNewRejectsNilOptions(t *testing.T) {
	_, err := New(WithLoader("text/plain", nil))
	assert.Error(t, err)
	_, err = New(WithLogger(nil))
	assert.Error(t, err)
}
