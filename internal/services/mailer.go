package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"

	"capsule-backend/internal/apperr"
	"capsule-backend/internal/config"
)

// Mailer sends a single email and reports success or failure. Implementations
// retry transient failures internally; callers only see the final outcome.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer is the production Mailer, speaking SMTP with bounded exponential
// backoff per send.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	client *mail.Client
}

// NewSMTPMailer creates a mailer from SMTP configuration.
func NewSMTPMailer(cfg config.SMTPConfig) (*SMTPMailer, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTimeout(cfg.SendTimeout()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return &SMTPMailer{cfg: cfg, client: client}, nil
}

// Send delivers one email, retrying transient failures with exponential
// backoff up to the configured attempt count.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("%w: invalid sender address: %v", apperr.ErrDispatch, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("%w: invalid recipient address: %v", apperr.ErrDispatch, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	msg.AddAlternativeString(mail.TypeTextHTML, "<p>"+strings.ReplaceAll(body, "\n", "<br>")+"</p>")

	attempt := 0
	operation := func() error {
		attempt++
		sendCtx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout())
		defer cancel()

		if err := m.client.DialAndSendWithContext(sendCtx, msg); err != nil {
			log.Warn().
				Err(err).
				Str("to", to).
				Int("attempt", attempt).
				Msg("Email send attempt failed")
			return err
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newExponentialBackOff(), uint64(m.cfg.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("%w: send to %s exhausted after %d attempts: %v",
			apperr.ErrDispatch, to, attempt, err)
	}

	log.Info().Str("to", to).Str("subject", subject).Msg("Email sent")
	return nil
}

func newExponentialBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	return bo
}
