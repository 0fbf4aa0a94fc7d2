package composer

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/outreach-scheduler/internal/errors"
)

var markerWithSpace = regexp.MustCompile(`[ \t]*` + regexp.QuoteMeta(PersonalizationMarker))

// TemplateComposer fills the template without any personalisation step.
type TemplateComposer struct {
	Template string
}

var _ Composer = (*TemplateComposer)(nil)

func (c *TemplateComposer) Compose(_ context.Context, url, companyName, firstName string) (string, error) {
	if strings.TrimSpace(companyName) == "" {
		return "", appErrors.NewCompositionError(errors.New("company name is empty"))
	}
	tpl := c.Template
	if tpl == "" {
		tpl = DefaultTemplate
	}
	body := RenderTemplate(tpl, templateData(url, companyName, firstName))
	return markerWithSpace.ReplaceAllString(body, ""), nil
}
