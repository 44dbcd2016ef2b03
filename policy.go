package askscot

import (
	"context"
	"fmt"
	"time"

	"github.com/alexandre-normand/askscot/ai"
)

// Reply texts
const (
	// AIErrorReply is the reply sent when the answer provider fails to answer a question
	AIErrorReply = "Sorry, I encountered an error while processing your question. Please try again."

	informationalReply   = "I received your message! Type 'hello' or mention me to interact."
	informationalAIReply = "I received your message! Ask me a question here or mention me in a channel and I'll do my best to answer."
	echoPrefix           = "Echo: "
	dateLayout           = "Monday, January 2, 2006"
	timeLayout           = "3:04:05 PM"
)

// ReplyDecision is the reply strategy chosen for a RoutedEvent. Its implementations are
// AnswerWithAI, AnswerWithTimestamp, GreetingReply, InformationalReply, EchoReply and NoReply
type ReplyDecision interface {
	decision() string
}

// AnswerWithAI answers the question with the answer provider
type AnswerWithAI struct {
	Question string
}

// AnswerWithTimestamp replies with the current date and time
type AnswerWithTimestamp struct{}

// GreetingReply greets the user
type GreetingReply struct {
	UserID string
}

// InformationalReply tells the user how to interact with us
type InformationalReply struct {
	AIConfigured bool
}

// EchoReply echoes the slash command text
type EchoReply struct {
	Text string
}

// NoReply sends nothing
type NoReply struct{}

func (AnswerWithAI) decision() string        { return "ai" }
func (AnswerWithTimestamp) decision() string { return "timestamp" }
func (GreetingReply) decision() string       { return "greeting" }
func (InformationalReply) decision() string  { return "informational" }
func (EchoReply) decision() string           { return "echo" }
func (NoReply) decision() string             { return "none" }

// Decide picks the reply strategy for a routed event. Slash commands and mentions take
// precedence over the greeting trigger which only applies to message events
func Decide(e RoutedEvent, aiAvailable bool) ReplyDecision {
	switch e.Kind {
	case SlashCommand:
		return EchoReply{Text: e.RawText}

	case Mention:
		q := ExtractQuestion(e.RawText)
		if q != "" && aiAvailable {
			return AnswerWithAI{Question: q}
		}

		return AnswerWithTimestamp{}

	case DirectMessage:
		if e.Greeting {
			return GreetingReply{UserID: e.UserID}
		}

		q := ExtractQuestion(e.RawText)
		if q != "" && aiAvailable {
			return AnswerWithAI{Question: q}
		}

		return InformationalReply{AIConfigured: aiAvailable}

	case Ignored:
		if e.Greeting {
			return GreetingReply{UserID: e.UserID}
		}

		return NoReply{}
	}

	return NoReply{}
}

// ResponsePolicy decides on and composes replies to routed events
type ResponsePolicy struct {
	provider ai.Provider
	timeLoc  *time.Location
	now      func() time.Time
	logger   SLogger
}

// NewResponsePolicy creates a new ResponsePolicy. A nil provider disables answering with AI.
// Dates and times are rendered in timeLoc
func NewResponsePolicy(provider ai.Provider, timeLoc *time.Location, logger SLogger) (p *ResponsePolicy) {
	p = new(ResponsePolicy)
	p.provider = provider
	p.timeLoc = timeLoc
	p.now = time.Now
	p.logger = logger

	return p
}

// AIAvailable returns true if questions can be answered with AI
func (p *ResponsePolicy) AIAvailable() bool {
	return p.provider != nil
}

// Decide picks the reply strategy for a routed event given the policy's AI availability
func (p *ResponsePolicy) Decide(e RoutedEvent) ReplyDecision {
	return Decide(e, p.AIAvailable())
}

// Compose renders the reply text for a decision. ok is false when there is nothing to send.
// Answer provider failures never escape: they are converted to AIErrorReply
func (p *ResponsePolicy) Compose(ctx context.Context, d ReplyDecision) (text string, ok bool) {
	switch d := d.(type) {
	case AnswerWithAI:
		return p.answer(ctx, d.Question), true

	case AnswerWithTimestamp:
		now := p.now().In(p.timeLoc)
		return fmt.Sprintf("Today is %s and the time is %s.", now.Format(dateLayout), now.Format(timeLayout)), true

	case GreetingReply:
		return fmt.Sprintf("Hi there! <@%s>", d.UserID), true

	case InformationalReply:
		if d.AIConfigured {
			return informationalAIReply, true
		}

		return informationalReply, true

	case EchoReply:
		return echoPrefix + d.Text, true

	case NoReply:
		return "", false
	}

	return "", false
}

// answer gets the provider's answer to a question or the fallback reply if that fails
func (p *ResponsePolicy) answer(ctx context.Context, question string) string {
	if p.provider == nil {
		return AIErrorReply
	}

	answer, err := p.provider.Answer(ctx, question)
	if err != nil {
		p.logger.Printf("Error answering question [%s]: %v\n", question, err)
		return AIErrorReply
	}

	if answer == "" {
		p.logger.Printf("Empty answer to question [%s]\n", question)
		return AIErrorReply
	}

	return answer
}
