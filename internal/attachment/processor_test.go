package attachment

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"report-scheduler/internal/objectstore"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newProcessor(t *testing.T, allowed ...string) (*Processor, string) {
	dir := t.TempDir()
	p := NewProcessor(objectstore.NewLocalStore(dir), Config{AllowedMimeTypes: allowed, ThumbnailWidth: 32}, zap.NewNop())
	return p, dir
}

func TestProcessImageCreatesThumbnail(t *testing.T) {
	p, dir := newProcessor(t, "image/png", "application/pdf")
	author := "author-1"

	att, err := p.Process(context.Background(), "report-1", &author, "photos/site.png", pngBytes(t, 200, 100))
	require.NoError(t, err)

	assert.Equal(t, "report-1", att.RelatedReportUUID)
	assert.Equal(t, "site.png", att.FileName)
	assert.Equal(t, "image/png", att.MimeType)
	assert.True(t, strings.HasPrefix(att.StorageKey, dir))
	require.NotNil(t, att.ThumbnailKey)

	thumb, err := os.ReadFile(*att.ThumbnailKey)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 16, cfg.Height)
}

func TestProcessRejectsDisallowedType(t *testing.T) {
	p, _ := newProcessor(t, "application/pdf")

	_, err := p.Process(context.Background(), "report-1", nil, "notes.txt", []byte("just some text"))
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestProcessTextWithoutThumbnail(t *testing.T) {
	p, _ := newProcessor(t, "text/plain")

	att, err := p.Process(context.Background(), "report-1", nil, `C:\docs\notes.txt`, []byte("just some text"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", att.FileName)
	assert.Equal(t, "text/plain", att.MimeType)
	assert.Equal(t, int64(14), att.ContentLength)
	assert.Nil(t, att.ThumbnailKey)
}

func TestProcessEmpty(t *testing.T) {
	p, _ := newProcessor(t)
	if _, err := p.Process(context.Background(), "report-1", nil, "empty.bin", nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestDetectAllowsAllWhenListEmpty(t *testing.T) {
	p, _ := newProcessor(t)
	mime, ok := p.Detect(pngBytes(t, 2, 2))
	assert.True(t, ok)
	assert.Equal(t, "image/png", mime)
}

func TestDiscardRemovesBlobAndThumbnail(t *testing.T) {
	p, _ := newProcessor(t, "image/png")
	ctx := context.Background()

	att, err := p.Process(ctx, "report-1", nil, "photo.png", pngBytes(t, 64, 48))
	require.NoError(t, err)
	require.NotNil(t, att.ThumbnailKey)

	require.NoError(t, p.Discard(ctx, att))
	assert.NoFileExists(t, att.StorageKey)
	assert.NoFileExists(t, *att.ThumbnailKey)
	require.NoError(t, p.Discard(ctx, att), "discarding twice is harmless")
}
