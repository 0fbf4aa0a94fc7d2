// Package composer writes the personalised email body for a prospect.
package composer

import (
	"context"
	"strings"
)

// Composer produces the email text for one prospect. Failures are
// *appErrors.CompositionError.
type Composer interface {
	Compose(ctx context.Context, url, companyName, firstName string) (string, error)
}

// PersonalizationMarker marks where the AI composer inserts its sentences.
const PersonalizationMarker = "[PERSONALIZATION]"

// DefaultTemplate is used when COMPOSER_TEMPLATE is not set.
const DefaultTemplate = `Hi {first_name},

I came across {company_name} while looking at {website}. [PERSONALIZATION]

We build custom automation systems that take repetitive data work off a team's plate, and I think there is room to save {company_name} real time and money.

Would you be open to a short call next week to see if it fits?

Best regards`

// RenderTemplate replaces {key} placeholders with values.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

func templateData(url, companyName, firstName string) map[string]string {
	if firstName == "" {
		firstName = "there"
	}
	return map[string]string{
		"first_name":   firstName,
		"company_name": companyName,
		"website":      url,
	}
}
