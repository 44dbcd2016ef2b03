package askscot

import (
	"context"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// messagePoster is implemented by any value that has the PostMessageContext method.
//
// slack.Client implements this interface
type messagePoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (rChannelID string, rTimestamp string, err error)
}

// ephemeralPoster is implemented by any value that has the PostEphemeralContext method.
//
// slack.Client implements this interface
type ephemeralPoster interface {
	PostEphemeralContext(ctx context.Context, channelID string, userID string, options ...slack.MsgOption) (rTimestamp string, err error)
}

// commandResponder is implemented by any value that has the Respond method. It replies
// to a slash command through the command's response url
type commandResponder interface {
	Respond(ctx context.Context, responseURL string, msg *slack.WebhookMessage) (err error)
}

// chatDriver encompasses all messagePoster, ephemeralPoster and commandResponder interfaces and is implemented by any value
// that has all methods of those interfaces
type chatDriver interface {
	messagePoster
	ephemeralPoster
	commandResponder
}

// acker is implemented by any value that has the Ack method.
//
// socketmode.Client implements this interface
type acker interface {
	Ack(req socketmode.Request, payload ...interface{})
}

// slackChatDriver is the chatDriver backed by a slack.Client
type slackChatDriver struct {
	*slack.Client
}

// Respond posts the message to the response url
func (d slackChatDriver) Respond(ctx context.Context, responseURL string, msg *slack.WebhookMessage) (err error) {
	return slack.PostWebhookContext(ctx, responseURL, msg)
}

// deliver sends an answer on channelID according to its options. Slash command answers go to
// their response url, ephemeral answers are only visible to their user and everything else
// is posted on the channel (in a thread when requested)
func deliver(ctx context.Context, driver chatDriver, channelID string, answer *Answer) (err error) {
	sendOpts := ApplyAnswerOpts(answer.Options...)

	if responseURL := sendOpts[ResponseURLOpt]; responseURL != "" {
		return driver.Respond(ctx, responseURL, &slack.WebhookMessage{Text: answer.Text})
	}

	options := []slack.MsgOption{slack.MsgOptionText(answer.Text, false)}
	if sendOpts[ThreadedReplyOpt] == "true" && sendOpts[ThreadTimestamp] != "" {
		options = append(options, slack.MsgOptionTS(sendOpts[ThreadTimestamp]))

		if sendOpts[BroadcastOpt] == "true" {
			options = append(options, slack.MsgOptionBroadcast())
		}
	}

	if userID := sendOpts[EphemeralAnswerToOpt]; userID != "" {
		_, err = driver.PostEphemeralContext(ctx, channelID, userID, options...)
		return err
	}

	_, _, err = driver.PostMessageContext(ctx, channelID, options...)
	return err
}
