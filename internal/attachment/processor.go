// Package attachment validates and stores binary files linked to reports.
package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"report-scheduler/internal/models"
	"report-scheduler/internal/objectstore"
)

var (
	ErrNotAllowed = errors.New("attachment type not allowed")
	ErrEmpty      = errors.New("attachment is empty")
)

type Config struct {
	AllowedMimeTypes []string
	// ThumbnailWidth of zero disables thumbnails.
	ThumbnailWidth int
}

// Processor turns raw bytes into a stored attachment.
type Processor struct {
	store  objectstore.Store
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func NewProcessor(store objectstore.Store, cfg Config, logger *zap.Logger) *Processor {
	return &Processor{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Detect returns the sniffed media type without parameters and whether it is allowed.
func (p *Processor) Detect(data []byte) (string, bool) {
	mt := mimetype.Detect(data)
	base := strings.TrimSpace(strings.SplitN(mt.String(), ";", 2)[0])
	if len(p.cfg.AllowedMimeTypes) == 0 {
		return base, true
	}
	for _, allowed := range p.cfg.AllowedMimeTypes {
		if mt.Is(allowed) {
			return base, true
		}
	}
	return base, false
}

// Process stores data for the report and returns the attachment row to persist.
func (p *Processor) Process(ctx context.Context, reportUUID string, authorUUID *string, fileName string, data []byte) (models.Attachment, error) {
	if len(data) == 0 {
		return models.Attachment{}, fmt.Errorf("%s: %w", fileName, ErrEmpty)
	}
	mimeType, ok := p.Detect(data)
	if !ok {
		return models.Attachment{}, fmt.Errorf("%s (%s): %w", fileName, mimeType, ErrNotAllowed)
	}

	id := uuid.NewString()
	name := cleanFileName(fileName)
	key := path.Join("attachments", reportUUID, id, name)
	location, err := p.store.Put(ctx, key, data, mimeType)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("store attachment: %w", err)
	}

	att := models.Attachment{
		UUID:              id,
		RelatedReportUUID: reportUUID,
		AuthorUUID:        authorUUID,
		FileName:          name,
		MimeType:          mimeType,
		ContentLength:     int64(len(data)),
		StorageKey:        location,
		CreatedAt:         p.now().UTC(),
	}
	if strings.HasPrefix(mimeType, "image/") && p.cfg.ThumbnailWidth > 0 {
		thumb, err := p.thumbnail(ctx, key, data)
		if err != nil {
			p.logger.Warn("thumbnail failed", zap.String("attachment", id), zap.Error(err))
		} else {
			att.ThumbnailKey = &thumb
		}
	}
	return att, nil
}

// Discard removes the blobs written for att, for rows that never got committed.
func (p *Processor) Discard(ctx context.Context, att models.Attachment) error {
	var errs []error
	if att.StorageKey != "" {
		errs = append(errs, p.store.Delete(ctx, att.StorageKey))
	}
	if att.ThumbnailKey != nil {
		errs = append(errs, p.store.Delete(ctx, *att.ThumbnailKey))
	}
	return errors.Join(errs...)
}

func (p *Processor) thumbnail(ctx context.Context, key string, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	resized := imaging.Resize(img, p.cfg.ThumbnailWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return p.store.Put(ctx, key+".thumb.jpg", buf.Bytes(), "image/jpeg")
}

func cleanFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(path.Base(name))
	if name == "" || name == "." || name == "/" {
		return "attachment"
	}
	return name
}
