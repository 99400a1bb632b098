package mailbox

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"report-scheduler/internal/mart"
)

type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Config struct {
	Bucket          string
	InboxPrefix     string
	ProcessedPrefix string
}

// S3Mailbox reads .eml files dropped into a bucket prefix. Acknowledged messages are
// moved under the processed prefix.
type S3Mailbox struct {
	client s3API
	cfg    S3Config
	logger *zap.Logger
}

func NewS3Mailbox(client s3API, cfg S3Config, logger *zap.Logger) *S3Mailbox {
	if cfg.ProcessedPrefix == "" {
		cfg.ProcessedPrefix = "processed/"
	}
	return &S3Mailbox{client: client, cfg: cfg, logger: logger}
}

// Download returns up to limit messages in key order. Unparseable objects are returned
// with an empty body so that the importer records and acknowledges them. An object that
// cannot be fetched is skipped and stays in the inbox for the next pass.
func (m *S3Mailbox) Download(ctx context.Context, limit int) ([]mart.Message, error) {
	keys, err := m.list(ctx, limit)
	if err != nil {
		return nil, err
	}
	messages := make([]mart.Message, 0, len(keys))
	for _, key := range keys {
		raw, err := m.get(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return messages, ctx.Err()
			}
			m.logger.Warn("skipping unreadable mailbox message", zap.String("key", key), zap.Error(err))
			continue
		}
		msg, err := Parse(key, raw)
		if err != nil {
			m.logger.Warn("unparseable mailbox message", zap.String("key", key), zap.Error(err))
			msg = mart.Message{ID: key}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (m *S3Mailbox) list(ctx context.Context, limit int) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.cfg.Bucket),
		Prefix: aws.String(m.cfg.InboxPrefix),
	}, func(o *s3.ListObjectsV2PaginatorOptions) {
		if limit > 0 && limit < 1000 {
			o.Limit = int32(limit)
		}
	})
	var keys []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list inbox: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(strings.ToLower(key), ".eml") {
				continue
			}
			keys = append(keys, key)
			if limit > 0 && len(keys) >= limit {
				return keys, nil
			}
		}
	}
	return keys, nil
}

func (m *S3Mailbox) get(ctx context.Context, key string) ([]byte, error) {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return raw, nil
}

// Ack moves the message out of the inbox.
func (m *S3Mailbox) Ack(ctx context.Context, id string) error {
	dest := m.cfg.ProcessedPrefix + strings.TrimPrefix(id, m.cfg.InboxPrefix)
	if _, err := m.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(m.cfg.Bucket),
		CopySource: aws.String(copySource(m.cfg.Bucket, id)),
		Key:        aws.String(dest),
	}); err != nil {
		return fmt.Errorf("copy %s: %w", id, err)
	}
	if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.cfg.Bucket),
		Key:    aws.String(id),
	}); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}
