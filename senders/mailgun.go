package senders

import (
	"context"

	"github.com/mailgun/mailgun-go/v4"
)

type mailgunSender struct {
	base
}

func (e *mailgunSender) Send(ctx context.Context, subject, body, recipient string) (string, error) {
	mg := mailgun.NewMailgun(e.cfg.Mailgun.Domain, e.cfg.Mailgun.APIKey)
	mg.Client().Transport = e.transport

	// Create message with empty body first.
	message := mg.NewMessage(e.cfg.Mailgun.SenderFrom, subject, "", recipient)
	// SetHtml with the payload proper. This will assign the MIME type properly.
	message.SetHtml(body)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.MailgunTimeout())
	defer cancel()

	_, id, err := mg.Send(ctx, message)
	if err != nil {
		e.log.Sugar().Errorw("Mailgun send failed", "recipient", recipient, "err", err)
	}
	return id, err
}
