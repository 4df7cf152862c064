package mail

import (
	"context"
	"errors"
	"fmt"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/config"
	"github.com/dalscooter/concern-service/internal/domain"
)

// HeaderDedupKey carries the notification dedup key so replies and bounces
// can be traced back to the concern.
const HeaderDedupKey gomail.Header = "X-Concern-Id"

// Sender delivers a rendered notification over one transport.
type Sender interface {
	Send(ctx context.Context, event domain.NotificationEvent) error
}

// dialer is satisfied by *gomail.Client.
type dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPSender sends plain-text email through an authenticated SMTP relay.
type SMTPSender struct {
	client   dialer
	from     string
	fromName string
	logger   *zap.Logger
}

// NewSMTPSender builds a client for the configured relay. Port 465 uses
// implicit TLS; other ports negotiate STARTTLS when offered.
func NewSMTPSender(cfg config.SMTPConfig, logger *zap.Logger) (*SMTPSender, error) {
	if cfg.User == "" {
		return nil, errors.New("smtp user required")
	}
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.User),
		gomail.WithPassword(cfg.Pass),
		gomail.WithTimeout(cfg.Timeout()),
	}
	if cfg.Port == 465 {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return newSMTPSender(client, cfg, logger), nil
}

func newSMTPSender(client dialer, cfg config.SMTPConfig, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{client: client, from: cfg.User, fromName: cfg.FromName, logger: logger}
}

// BuildMessage renders event as a text/plain message from the brand sender.
func (s *SMTPSender) BuildMessage(event domain.NotificationEvent) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(event.RecipientAddress); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject(event.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, event.Body)
	if event.DedupKey != "" {
		msg.SetGenHeader(HeaderDedupKey, event.DedupKey)
	}
	return msg, nil
}

// Send delivers event; the context bounds the whole SMTP exchange.
func (s *SMTPSender) Send(ctx context.Context, event domain.NotificationEvent) error {
	msg, err := s.BuildMessage(event)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	s.logger.Info("email sent",
		zap.String("recipient", event.RecipientAddress),
		zap.String("dedup_key", event.DedupKey))
	return nil
}

// LogSender records notifications without delivering them. It backs the
// log channel and local runs without SMTP credentials.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(_ context.Context, event domain.NotificationEvent) error {
	l.logger.Info("notification",
		zap.String("recipient", event.RecipientAddress),
		zap.String("subject", event.Subject),
		zap.String("kind", string(event.Kind)),
		zap.String("dedup_key", event.DedupKey))
	return nil
}
