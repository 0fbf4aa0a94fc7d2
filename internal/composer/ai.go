package composer

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	appErrors "github.com/unclebandit/outreach-scheduler/internal/errors"
	"github.com/unclebandit/outreach-scheduler/internal/logger"
)

// ChatCompleter is the part of *openai.Client the composer uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const systemPrompt = `You write cold outreach emails. You receive an email template and text scraped from the prospect's website.
Replace the ` + PersonalizationMarker + ` marker with one or two sentences that reference something specific about the prospect's business.
Do not change any other part of the template. Do not add a subject line. Reply with the finished email only.`

// AIComposer scrapes the prospect website and asks a chat model to personalise the template.
type AIComposer struct {
	Scraper     Scraper
	Client      ChatCompleter
	Model       string
	Template    string
	Temperature float32
}

var _ Composer = (*AIComposer)(nil)

func NewAIComposer(apiKey, model, template string, scraper Scraper) *AIComposer {
	return &AIComposer{
		Scraper:     scraper,
		Client:      openai.NewClient(apiKey),
		Model:       model,
		Template:    template,
		Temperature: 0.6,
	}
}

func (c *AIComposer) Compose(ctx context.Context, url, companyName, firstName string) (string, error) {
	info, err := c.Scraper.Scrape(ctx, url)
	if err != nil {
		return "", appErrors.NewCompositionError(errors.Wrap(err, "scrape website"))
	}
	if info == "" {
		return "", appErrors.NewCompositionError(errors.Errorf("no text found on %s", url))
	}

	tpl := c.Template
	if tpl == "" {
		tpl = DefaultTemplate
	}
	email := RenderTemplate(tpl, templateData(url, companyName, firstName))

	resp, err := c.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.Model,
		Temperature: c.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("EMAIL TEMPLATE:\n%s\n\nWEBSITE OF %s:\n%s", email, companyName, info)},
		},
	})
	if err != nil {
		return "", appErrors.NewCompositionError(errors.Wrap(err, "chat completion"))
	}
	if len(resp.Choices) == 0 {
		return "", appErrors.NewCompositionError(errors.New("chat completion returned no choices"))
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", appErrors.NewCompositionError(errors.New("chat completion returned empty text"))
	}
	logger.FromContext(ctx).Debug("email composed", "company", companyName, "tokens", resp.Usage.TotalTokens)
	return text, nil
}
