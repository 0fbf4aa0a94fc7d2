package transport

import (
	"context"

	"github.com/unclebandit/outreach-scheduler/internal/logger"
)

// NoopTransport only logs. Used for dry runs.
type NoopTransport struct{}

var _ Transport = NoopTransport{}

func (NoopTransport) Deliver(ctx context.Context, email Email) error {
	logger.FromContext(ctx).Info("dry run: email not sent",
		"to", email.To, "subject", Subject(email.CompanyName), "tracking_id", email.TrackingID)
	return nil
}
