package ai

import (
	"context"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"
)

// Model is the model answering questions
const Model = anthropic.Model("claude-sonnet-4-5-20250929") // same value as anthropic.ModelClaudeSonnet4_5_20250929 in newer SDK releases

// ErrEmptyAnswer is returned when the model replied without any text
var ErrEmptyAnswer = errors.New("model returned an empty answer")

// messageCreator is implemented by any value that has the New method.
//
// anthropic.MessageService implements this interface
type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (res *anthropic.Message, err error)
}

// Claude answers questions with the Anthropic messages API
type Claude struct {
	messages messageCreator
}

// NewClaude creates a new Claude provider authenticated with apiKey. Additional request options
// (base url, http client) are passed through to the anthropic client
func NewClaude(apiKey string, opts ...option.RequestOption) (c *Claude, err error) {
	if apiKey == "" {
		return nil, errors.New("an api key is required to answer with claude")
	}

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)

	return newClaude(&client.Messages), nil
}

func newClaude(messages messageCreator) (c *Claude) {
	c = new(Claude)
	c.messages = messages

	return c
}

// Answer sends the question as a single user message along with the fixed system instruction
// and returns the concatenated text of the reply
func (c *Claude) Answer(ctx context.Context, question string) (answer string, err error) {
	msg, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:       Model,
		MaxTokens:   MaxTokens,
		Temperature: anthropic.Float(Temperature),
		System:      []anthropic.TextBlockParam{{Text: SystemInstruction}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(question)),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "claude message creation failed")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	answer = strings.TrimSpace(b.String())
	if answer == "" {
		return "", ErrEmptyAnswer
	}

	return answer, nil
}
