// Package ai provides the language model backed answer providers used by askscot
// to answer free-text questions
package ai

import (
	"context"
)

// Fixed generation parameters. Those are not user-tunable
const (
	// SystemInstruction is the instruction given to the model ahead of every question
	SystemInstruction = "You are a helpful assistant in a Slack workspace. Provide concise, clear answers."

	// MaxTokens is the maximum length of a generated answer
	MaxTokens = 500

	// Temperature is the sampling temperature used for every answer
	Temperature = 0.7
)

// Provider is implemented by any value that has the Answer method. A nil error means the
// answer is usable while a non-nil error means the question could not be answered
type Provider interface {
	// Answer returns the answer to a question
	Answer(ctx context.Context, question string) (answer string, err error)
}

// ProviderFunc is an adapter to allow the use of ordinary functions as Providers
type ProviderFunc func(ctx context.Context, question string) (answer string, err error)

// Answer calls f(ctx, question)
func (f ProviderFunc) Answer(ctx context.Context, question string) (answer string, err error) {
	return f(ctx, question)
}
