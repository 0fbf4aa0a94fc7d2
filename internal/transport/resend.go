package transport

import (
	"context"

	"github.com/pkg/errors"
	"github.com/resend/resend-go/v2"

	appErrors "github.com/unclebandit/outreach-scheduler/internal/errors"
)

type resendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendTransport delivers through the Resend HTTP API.
type ResendTransport struct {
	emails resendEmails
	from   string
	domain string
}

var _ Transport = (*ResendTransport)(nil)

func NewResendTransport(apiKey, from, senderName, domain string) *ResendTransport {
	client := resend.NewClient(apiKey)
	if senderName != "" {
		from = senderName + " <" + from + ">"
	}
	return &ResendTransport{emails: client.Emails, from: from, domain: domain}
}

func (t *ResendTransport) Deliver(ctx context.Context, email Email) error {
	body, err := RenderHTML(email.Text, PixelURL(t.domain, email.TrackingID))
	if err != nil {
		return appErrors.NewDeliveryError(email.To, err)
	}

	_, err = t.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    t.from,
		To:      []string{email.To},
		Subject: Subject(email.CompanyName),
		Text:    email.Text,
		Html:    body,
	})
	if err != nil {
		return appErrors.NewDeliveryError(email.To, errors.Wrap(err, "resend send"))
	}
	return nil
}
