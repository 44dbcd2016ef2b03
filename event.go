package askscot

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"github.com/spf13/cast"
)

// Kind is the kind of interaction a routed event represents
type Kind int

// Kinds of routed events
const (
	// Ignored events never get a reply unless they carry a greeting trigger
	Ignored Kind = iota
	// Mention is an app_mention of the bot in a shared channel
	Mention
	// DirectMessage is a message sent to the bot in a direct message channel
	DirectMessage
	// SlashCommand is an invocation of the echo slash command
	SlashCommand
)

var kindNames = map[Kind]string{
	Ignored:       "ignored",
	Mention:       "mention",
	DirectMessage: "directMessage",
	SlashCommand:  "slashCommand",
}

// String returns the name of the kind
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// Event types and channel types as sent by slack
const (
	appMentionEventType = "app_mention"
	messageEventType    = "message"
	directChannelType   = "im"
)

// greetingTrigger is the keyword that triggers a greeting on message events
const greetingTrigger = "hello"

// RawEvent holds the fields of an inbound Events API event as sent by slack. Only
// type is expected to be set and every other field may be absent
type RawEvent map[string]interface{}

func (r RawEvent) str(key string) string {
	return cast.ToString(r[key])
}

// Type returns the event type
func (r RawEvent) Type() string {
	return r.str("type")
}

// Identity holds the bot's own identifiers as resolved on connection
type Identity struct {
	UserID string
	BotID  string
}

// mentionToken returns the mention markup of the identity or an empty string if unknown
func (id Identity) mentionToken() string {
	if id.UserID == "" {
		return ""
	}

	return fmt.Sprintf("<@%s>", id.UserID)
}

// RoutedEvent is the normalized form of an inbound event or command
type RoutedEvent struct {
	Kind Kind

	// RawText is the original text of the message or the command argument text
	RawText string

	UserID          string
	ChannelID       string
	ChannelType     string
	Timestamp       string
	ThreadTimestamp string

	// Greeting is true for genuine message events containing the greeting trigger
	Greeting bool

	// Command and ResponseURL are only set on slash commands
	Command     string
	ResponseURL string
}

// Classify derives a RoutedEvent from a RawEvent. Unknown or malformed events are Ignored and
// classification never fails. The rules are the following:
// 	1. Any event with a subtype (edits, deletions, system messages) is Ignored
// 	2. An app_mention is a Mention
// 	3. A message authored by a bot (us included) is Ignored
// 	4. A message on a direct message channel is a DirectMessage
// 	5. Any other message is Ignored but may carry the greeting trigger
func Classify(raw RawEvent, self Identity) (e RoutedEvent) {
	e = RoutedEvent{
		Kind:            Ignored,
		RawText:         raw.str("text"),
		UserID:          raw.str("user"),
		ChannelID:       raw.str("channel"),
		ChannelType:     raw.str("channel_type"),
		Timestamp:       raw.str("ts"),
		ThreadTimestamp: raw.str("thread_ts"),
	}

	if raw.str("subtype") != "" {
		return e
	}

	switch raw.Type() {
	case appMentionEventType:
		e.Kind = Mention
		return e

	case messageEventType:
		if isFromBot(raw, self) {
			return e
		}

		if e.ChannelType == directChannelType {
			e.Kind = DirectMessage
		}

		e.Greeting = hasGreetingTrigger(e, self)
		return e
	}

	return e
}

// ClassifyCommand derives a RoutedEvent from a slash command. Only the echo command is routed
// as a SlashCommand, any other command is Ignored
func ClassifyCommand(cmd slack.SlashCommand, echoCommand string) (e RoutedEvent) {
	e = RoutedEvent{
		Kind:        Ignored,
		RawText:     cmd.Text,
		UserID:      cmd.UserID,
		ChannelID:   cmd.ChannelID,
		Command:     cmd.Command,
		ResponseURL: cmd.ResponseURL,
	}

	if cmd.Command == echoCommand {
		e.Kind = SlashCommand
	}

	return e
}

// isFromBot returns true if the message was authored by a bot or by us
func isFromBot(raw RawEvent, self Identity) bool {
	if raw.str("bot_id") != "" {
		return true
	}

	user := raw.str("user")
	return self.UserID != "" && user == self.UserID
}

// hasGreetingTrigger returns true if the message text contains the greeting keyword. A channel
// message mentioning us is left to the app_mention delivered for that same message
func hasGreetingTrigger(e RoutedEvent, self Identity) bool {
	if !strings.Contains(e.RawText, greetingTrigger) {
		return false
	}

	if e.ChannelType != directChannelType {
		if token := self.mentionToken(); token != "" && strings.Contains(e.RawText, token) {
			return false
		}
	}

	return true
}
