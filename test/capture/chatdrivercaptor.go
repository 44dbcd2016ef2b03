// Package capture provides in-memory slack drivers recording what gets sent to slack for
// post-execution validation
package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/slack-go/slack"
)

// SentMessage holds the resolved content of a message sent to slack
type SentMessage struct {
	ChannelID       string
	Text            string
	ThreadTimestamp string
	Broadcast       bool

	// EphemeralTo is set to the recipient's user id for ephemeral messages
	EphemeralTo string

	// ResponseURL is set for slash command responses
	ResponseURL string
}

// ChatDriverCaptor captures messages sent by invocations of PostMessageContext, PostEphemeralContext
// and Respond. It is safe for concurrent use
type ChatDriverCaptor struct {
	// Err, when set, is returned by every send after recording it
	Err error

	mu         sync.Mutex
	timeCursor uint64
	sent       []SentMessage
}

// NewChatDriver returns a new initialized ChatDriverCaptor instance
func NewChatDriver() (c *ChatDriverCaptor) {
	c = new(ChatDriverCaptor)
	c.timeCursor = 1547785956
	c.sent = make([]SentMessage, 0)

	return c
}

// PostMessageContext captures the details of a message posted to channelID
func (c *ChatDriverCaptor) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (rChannelID string, rTimestamp string, err error) {
	m, err := resolve(channelID, options...)
	if err != nil {
		return "", "", err
	}

	ts := c.record(m)
	return channelID, ts, c.Err
}

// PostEphemeralContext captures the details of an ephemeral message sent to userID on channelID
func (c *ChatDriverCaptor) PostEphemeralContext(ctx context.Context, channelID string, userID string, options ...slack.MsgOption) (rTimestamp string, err error) {
	m, err := resolve(channelID, options...)
	if err != nil {
		return "", err
	}

	m.EphemeralTo = userID
	ts := c.record(m)
	return ts, c.Err
}

// Respond captures the details of a slash command response
func (c *ChatDriverCaptor) Respond(ctx context.Context, responseURL string, msg *slack.WebhookMessage) (err error) {
	c.record(SentMessage{ResponseURL: responseURL, Text: msg.Text})
	return c.Err
}

// SentMessages returns a copy of all captured messages, in the order they were sent
func (c *ChatDriverCaptor) SentMessages() (sent []SentMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]SentMessage(nil), c.sent...)
}

// SentCount returns the number of captured messages
func (c *ChatDriverCaptor) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.sent)
}

// SentMessagesOnChannel returns the captured messages sent on channelID
func (c *ChatDriverCaptor) SentMessagesOnChannel(channelID string) (sent []SentMessage) {
	for _, m := range c.SentMessages() {
		if m.ChannelID == channelID {
			sent = append(sent, m)
		}
	}

	return sent
}

func (c *ChatDriverCaptor) record(m SentMessage) (timestamp string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, m)

	c.timeCursor = c.timeCursor + 10
	return fmt.Sprintf("%d.000", c.timeCursor)
}

// resolve applies the message options to get the values that would be sent to slack
func resolve(channelID string, options ...slack.MsgOption) (m SentMessage, err error) {
	_, values, err := slack.UnsafeApplyMsgOptions("", channelID, "", options...)
	if err != nil {
		return m, err
	}

	return SentMessage{
		ChannelID:       channelID,
		Text:            values.Get("text"),
		ThreadTimestamp: values.Get("thread_ts"),
		Broadcast:       values.Get("reply_broadcast") == "true",
	}, nil
}
