package service

import (
	"context"
	"strings"

	"github.com/unclebandit/outreach-scheduler/internal/composer"
	"github.com/unclebandit/outreach-scheduler/internal/model"
	"github.com/unclebandit/outreach-scheduler/internal/transport"
)

const companyNameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789&%$!?()-+=./, "

// IsEnglishCompanyName reports whether every character of name is in the
// plain ASCII allow-list. Names with other characters are not emailed.
func IsEnglishCompanyName(name string) bool {
	for _, r := range name {
		if !strings.ContainsRune(companyNameAlphabet, r) {
			return false
		}
	}
	return true
}

// Outcome of one send attempt. Content is what gets stored on the task.
type Outcome struct {
	Content string
	Sent    bool
	Err     error
}

// Status maps the outcome to the terminal task status.
func (o Outcome) Status() model.TaskStatus {
	if o.Sent {
		return model.TaskSent
	}
	return model.TaskSendingFailed
}

// Outreach composes and delivers a single email.
type Outreach struct {
	Composer  composer.Composer
	Transport transport.Transport
}

// Send makes exactly one compose and one delivery attempt.
func (o *Outreach) Send(ctx context.Context, r model.Recipient, trackingID string) Outcome {
	if !IsEnglishCompanyName(r.CompanyName) {
		return Outcome{Content: model.ContentNotEnglish}
	}

	text, err := o.Composer.Compose(ctx, r.CompanyWebsite, r.CompanyName, r.FirstName)
	if err != nil {
		return Outcome{Content: model.ContentError, Err: err}
	}

	err = o.Transport.Deliver(ctx, transport.Email{
		To:          r.Email,
		Text:        text,
		TrackingID:  trackingID,
		CompanyName: r.CompanyName,
	})
	if err != nil {
		return Outcome{Content: text, Err: err}
	}
	return Outcome{Content: text, Sent: true}
}
