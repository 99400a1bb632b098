package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"

	"report-scheduler/internal/mart"
)

// Parse splits a raw RFC 5322 message into its body and attachments. The body is the
// first inline text/plain or application/json part, else the first inline part.
func Parse(id string, raw []byte) (mart.Message, error) {
	msg := mart.Message{ID: id}
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return msg, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	var (
		body      []byte
		preferred bool
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !gomessage.IsUnknownCharset(err) {
			return msg, fmt.Errorf("read part: %w", err)
		}
		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			data, err := io.ReadAll(part.Body)
			if err != nil {
				return msg, fmt.Errorf("read inline part: %w", err)
			}
			ct, _, _ := h.ContentType()
			isPreferred := ct == "text/plain" || ct == "application/json" || ct == ""
			if body == nil || (isPreferred && !preferred) {
				body, preferred = data, isPreferred
			}
		case *gomail.AttachmentHeader:
			data, err := io.ReadAll(part.Body)
			if err != nil {
				return msg, fmt.Errorf("read attachment: %w", err)
			}
			name, _ := h.Filename()
			ct, _, _ := h.ContentType()
			msg.Attachments = append(msg.Attachments, mart.Attachment{
				Name:        strings.TrimSpace(name),
				ContentType: ct,
				Data:        data,
			})
		}
	}
	msg.Body = body
	return msg, nil
}
