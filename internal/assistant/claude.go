package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

const systemPrompt = "You are a trust and safety classifier for a chat community. " +
	"Given a chat transcript, pick the single report category that best describes the message marked with >>. " +
	"Reply with the number of the category only."

// Claude selects labels with the Anthropic Messages API.
type Claude struct {
	client anthropic.Client
	model  string
}

// NewClaude creates a Claude selector. Extra options are passed to the SDK
// client.
func NewClaude(apiKey, model string, opts ...option.RequestOption) *Claude {
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Claude{client: anthropic.NewClient(opts...), model: model}
}

func buildPrompt(transcript string, labels []string) string {
	var b strings.Builder
	b.WriteString("Transcript:\n")
	b.WriteString(transcript)
	b.WriteString("\nCategories:\n")
	for i, l := range labels {
		fmt.Fprintf(&b, "%d. %s\n", i+1, l)
	}
	return b.String()
}

// Select asks the model to choose one of labels.
func (c *Claude) Select(ctx context.Context, transcript string, labels []string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 16,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(transcript, labels))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude: messages: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return Match(text.String(), labels)
}
