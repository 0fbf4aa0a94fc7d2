// Package transport delivers composed emails.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
)

// Email is one outbound message.
type Email struct {
	To          string
	Text        string
	TrackingID  string
	CompanyName string
}

// Transport delivers an email. Failures are *appErrors.DeliveryError.
type Transport interface {
	Deliver(ctx context.Context, email Email) error
}

// Subject is the subject line for a prospect company.
func Subject(companyName string) string {
	return fmt.Sprintf("Saving costs for %s with AI Automation", companyName)
}

// PixelURL is the open-tracking image URL for a task.
func PixelURL(domain, trackingID string) string {
	return strings.TrimRight(domain, "/") + "/tracking-pixel/" + trackingID
}

// RenderHTML converts the composed text to HTML and appends the tracking pixel.
func RenderHTML(text, pixelURL string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("<html><body>")
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return "", errors.Wrap(err, "render html body")
	}
	fmt.Fprintf(&buf, `<img src="%s" width="1" height="1" />`, html.EscapeString(pixelURL))
	buf.WriteString("</body></html>")
	return buf.String(), nil
}
