package transport

import (
	"context"
	"crypto/tls"

	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"

	appErrors "github.com/unclebandit/outreach-scheduler/internal/errors"
)

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Insecure   bool
	From       string
	SenderName string
	Domain     string // base URL of the tracking pixel
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPTransport sends multipart plain/HTML mail over SMTP with STARTTLS.
type SMTPTransport struct {
	cfg    SMTPConfig
	dialer sender
}

var _ Transport = (*SMTPTransport)(nil)

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.Insecure,
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPTransport{cfg: cfg, dialer: d}
}

func (t *SMTPTransport) Deliver(ctx context.Context, email Email) error {
	m, err := t.message(email)
	if err != nil {
		return appErrors.NewDeliveryError(email.To, err)
	}
	if err := ctx.Err(); err != nil {
		return appErrors.NewDeliveryError(email.To, err)
	}
	if err := t.dialer.DialAndSend(m); err != nil {
		return appErrors.NewDeliveryError(email.To, errors.Wrap(err, "smtp send"))
	}
	return nil
}

func (t *SMTPTransport) message(email Email) (*gomail.Message, error) {
	body, err := RenderHTML(email.Text, PixelURL(t.cfg.Domain, email.TrackingID))
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(t.cfg.From, t.cfg.SenderName))
	m.SetHeader("To", email.To)
	m.SetHeader("Subject", Subject(email.CompanyName))
	m.SetBody("text/plain", email.Text)
	m.AddAlternative("text/html", body)
	return m, nil
}
