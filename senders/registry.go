package senders

import (
	"context"
	"net/http"

	"github.com/fiffu/substore/config"
	"go.uber.org/zap"
)

const PlatformEmail = "email"

type Sender interface {
	Send(ctx context.Context, subject, body, recipient string) (string, error)
}

type Registry map[string]Sender

// NewSenderRegistry falls back to logging messages when Mailgun is not configured.
func NewSenderRegistry(log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}
	if cfg.Mailgun.Domain == "" || cfg.Mailgun.APIKey == "" {
		log.Info("Mailgun is not configured, emails will only be logged")
		return Registry{PlatformEmail: &logSender{base}}
	}
	return Registry{PlatformEmail: &mailgunSender{base}}
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}

type logSender struct {
	base
}

func (s *logSender) Send(ctx context.Context, subject, body, recipient string) (string, error) {
	s.log.Sugar().Infow("Email not sent", "subject", subject, "recipient", recipient)
	return "", nil
}
