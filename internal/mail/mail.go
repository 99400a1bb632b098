package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// ErrRejected marks a permanent failure: retrying the same message will not help.
var ErrRejected = errors.New("message rejected")

// Message is a rendered HTML e-mail.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Transport delivers a message or returns an error. Errors wrapping ErrRejected are permanent.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	StartTLS bool
	Timeout  time.Duration
	From     string
}

// SMTPTransport sends through an SMTP relay, one connection per message.
type SMTPTransport struct {
	cfg  SMTPConfig
	opts []gomail.Option
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	opts := []gomail.Option{gomail.WithPort(cfg.Port)}
	if cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(cfg.Timeout))
	}
	if cfg.StartTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	return &SMTPTransport{cfg: cfg, opts: opts}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(t.cfg.From); err != nil {
		return fmt.Errorf("from address %q: %w", t.cfg.From, err)
	}
	if err := m.To(msg.To...); err != nil {
		return fmt.Errorf("%w: recipients %v: %v", ErrRejected, msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)

	client, err := gomail.NewClient(t.cfg.Host, t.opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		var sendErr *gomail.SendError
		if errors.As(err, &sendErr) && !sendErr.IsTemp() {
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogTransport only logs messages. Used when delivery is disabled.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(_ context.Context, msg Message) error {
	t.logger.Info("[disabled] email not sent",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
