package mailbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"report-scheduler/internal/mart"
)

const multipartEML = "From: mart@example.com\r\n" +
	"To: reports@example.com\r\n" +
	"Subject: MART report\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"XYZ\"\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>ignored</p>\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"{\"uuid\":\"r1\"}\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Disposition: attachment; filename=\"notes.txt\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"bm90ZXM=\r\n" +
	"--XYZ--\r\n"

const plainEML = "From: mart@example.com\r\n" +
	"Subject: MART report\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"{\"uuid\":\"r2\"}\r\n"

func TestParseMultipart(t *testing.T) {
	msg, err := Parse("inbox/a.eml", []byte(multipartEML))
	require.NoError(t, err)
	assert.Equal(t, "inbox/a.eml", msg.ID)
	assert.Equal(t, `{"uuid":"r1"}`, string(bytes.TrimSpace(msg.Body)))
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "notes.txt", msg.Attachments[0].Name)
	assert.Equal(t, "notes", string(msg.Attachments[0].Data))
}

func TestParseSinglePart(t *testing.T) {
	msg, err := Parse("b.eml", []byte(plainEML))
	require.NoError(t, err)
	assert.Equal(t, `{"uuid":"r2"}`, string(bytes.TrimSpace(msg.Body)))
	assert.Empty(t, msg.Attachments)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	copies  []string
	broken  map[string]bool
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken[aws.ToString(in.Key)] {
		return nil, errors.New("access denied")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.objects[aws.ToString(in.Key)]))}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, aws.ToString(in.CopySource))
	src := strings.TrimPrefix(aws.ToString(in.CopySource), aws.ToString(in.Bucket)+"/")
	src = strings.ReplaceAll(src, "%20", " ")
	f.objects[aws.ToString(in.Key)] = f.objects[src]
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3MailboxDownloadAndAck(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{
		"inbox/001.eml":       []byte(multipartEML),
		"inbox/002 plain.eml": []byte(plainEML),
		"inbox/003.eml":       []byte("not a mail message"),
		"inbox/readme.txt":    []byte("skip me"),
	}}
	mb := NewS3Mailbox(fake, S3Config{Bucket: "mart", InboxPrefix: "inbox/", ProcessedPrefix: "done/"}, zap.NewNop())
	ctx := context.Background()

	msgs, err := mb.Download(ctx, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "inbox/001.eml", msgs[0].ID)
	assert.Equal(t, "inbox/002 plain.eml", msgs[1].ID)

	require.NoError(t, mb.Ack(ctx, "inbox/002 plain.eml"))
	assert.Equal(t, []string{"mart/inbox/002%20plain.eml"}, fake.copies)
	assert.Contains(t, fake.objects, "done/002 plain.eml")
	assert.NotContains(t, fake.objects, "inbox/002 plain.eml")

	msgs, err = mb.Download(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"inbox/001.eml", "inbox/003.eml"}, ids)
}

func TestS3MailboxSkipsUnreadableObject(t *testing.T) {
	fake := &fakeS3{
		objects: map[string][]byte{
			"inbox/001.eml": []byte(multipartEML),
			"inbox/002.eml": []byte(plainEML),
			"inbox/003.eml": []byte(plainEML),
		},
		broken: map[string]bool{"inbox/002.eml": true},
	}
	mb := NewS3Mailbox(fake, S3Config{Bucket: "mart", InboxPrefix: "inbox/"}, zap.NewNop())

	msgs, err := mb.Download(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "inbox/001.eml", msgs[0].ID)
	assert.Equal(t, "inbox/003.eml", msgs[1].ID)
	assert.Contains(t, fake.objects, "inbox/002.eml")
}

func TestMemoryMailbox(t *testing.T) {
	mb := NewMemoryMailbox()
	mb.Add(mart.Message{ID: "a"}, mart.Message{ID: "b"}, mart.Message{ID: "c"})
	ctx := context.Background()

	msgs, err := mb.Download(ctx, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.NoError(t, mb.Ack(ctx, "b"))
	assert.Equal(t, 2, mb.Len())
	assert.Error(t, mb.Ack(ctx, "b"))
}
