package askscot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/alexandre-normand/askscot/ai"
	"github.com/alexandre-normand/askscot/config"
	"github.com/alexandre-normand/askscot/test/capture"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testResponseURL = "https://hooks.slack.com/commands/T1/1/abc"

// ackCaptor records acked envelope ids along with the number of messages already sent
// when each ack happened
type ackCaptor struct {
	mu        sync.Mutex
	driver    *capture.ChatDriverCaptor
	acks      []string
	sentAtAck []int
}

func (a *ackCaptor) Ack(req socketmode.Request, payload ...interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.acks = append(a.acks, req.EnvelopeID)
	a.sentAtAck = append(a.sentAtAck, a.driver.SentCount())
}

type testRun struct {
	sent      []capture.SentMessage
	acks      []string
	sentAtAck []int
	logs      string
	err       error
}

func newTestConfig() *viper.Viper {
	v := config.NewViperWithDefaults()
	v.Set(config.DebugKey, true)
	v.Set(config.MessageProcessingPartitionCount, 4)

	return v
}

func runAskscotWithIncomingEvents(t *testing.T, v *viper.Viper, provider ai.Provider, driverErr error, events ...socketmode.Event) (r testRun) {
	var logBuilder strings.Builder
	s, err := New("chickadee", v, OptionLog(log.New(&logBuilder, "", 0)))
	require.NoError(t, err)

	s.self = Identity{UserID: "UBOT", BotID: "BBOT"}
	if provider != nil {
		require.NoError(t, s.RegisterAnswerProvider(provider))
	}

	driver := capture.NewChatDriver()
	driver.Err = driverErr
	acker := &ackCaptor{driver: driver}

	ec := make(chan socketmode.Event)
	stopped := make(chan struct{})
	go sendTestEventsForProcessing(ec, stopped, events)

	r.err = s.handleIncomingEvents(context.Background(), ec, acker, driver)
	close(stopped)

	r.sent = driver.SentMessages()
	r.acks = acker.acks
	r.sentAtAck = acker.sentAtAck
	r.logs = logBuilder.String()

	return r
}

func sendTestEventsForProcessing(ec chan<- socketmode.Event, stopped <-chan struct{}, events []socketmode.Event) {
	// Start with a connected event to simulate the normal flow
	all := append([]socketmode.Event{{Type: socketmode.EventTypeConnected}}, events...)

	for _, e := range all {
		select {
		case ec <- e:
		case <-stopped:
			return
		}
	}

	close(ec)
}

func newEventsAPIEvent(envelopeID string, eventID string, inner map[string]interface{}) socketmode.Event {
	data, _ := json.Marshal(inner)
	raw := json.RawMessage(data)

	return socketmode.Event{
		Type: socketmode.EventTypeEventsAPI,
		Data: slackevents.EventsAPIEvent{
			Type: slackevents.CallbackEvent,
			Data: &slackevents.EventsAPICallbackEvent{Type: slackevents.CallbackEvent, EventID: eventID, InnerEvent: &raw},
		},
		Request: &socketmode.Request{EnvelopeID: envelopeID, Type: "events_api"},
	}
}

func newMentionEvent(id string, text string) socketmode.Event {
	return newEventsAPIEvent("env-"+id, "Ev"+id, map[string]interface{}{"type": "app_mention", "text": text, "user": "U1", "channel": "C1", "ts": "1547785956.000" + id})
}

func newDirectMessageEvent(id string, text string) socketmode.Event {
	return newEventsAPIEvent("env-"+id, "Ev"+id, map[string]interface{}{"type": "message", "channel_type": "im", "text": text, "user": "U1", "channel": "D1", "ts": "1547785956.000" + id})
}

func newSlashCommandEvent(envelopeID string, command string, text string, responseURL string) socketmode.Event {
	return socketmode.Event{
		Type:    socketmode.EventTypeSlashCommand,
		Data:    slack.SlashCommand{Command: command, Text: text, UserID: "U1", ChannelID: "C1", ResponseURL: responseURL},
		Request: &socketmode.Request{EnvelopeID: envelopeID, Type: "slash_commands"},
	}
}

func answering(answer string, err error) ai.Provider {
	return ai.ProviderFunc(func(ctx context.Context, question string) (string, error) {
		return answer, err
	})
}

func TestMentionWithoutAIAnsweredWithTimestamp(t *testing.T) {
	r := runAskscotWithIncomingEvents(t, newTestConfig(), nil, nil, newMentionEvent("1", "<@UBOT> what time is it?"))

	require.NoError(t, r.err)
	assert.Equal(t, []string{"env-1"}, r.acks)
	assert.Equal(t, []int{0}, r.sentAtAck)
	if assert.Len(t, r.sent, 1) {
		assert.Equal(t, "C1", r.sent[0].ChannelID)
		assert.Regexp(t, timestampReplyPattern, r.sent[0].Text)
		assert.Empty(t, r.sent[0].ThreadTimestamp)
	}
}

func TestMentionAnsweredWithAI(t *testing.T) {
	var questions []string
	provider := ai.ProviderFunc(func(ctx context.Context, question string) (string, error) {
		questions = append(questions, question)
		return "4", nil
	})

	r := runAskscotWithIncomingEvents(t, newTestConfig(), provider, nil, newMentionEvent("1", "<@UBOT> what is 2+2?"))

	assert.Equal(t, []string{"what is 2+2?"}, questions)
	assert.Equal(t, []capture.SentMessage{{ChannelID: "C1", Text: "4"}}, r.sent)
}

func TestMentionWithAIFailureApologizes(t *testing.T) {
	r := runAskscotWithIncomingEvents(t, newTestConfig(), answering("", fmt.Errorf("overloaded")), nil, newMentionEvent("1", "<@UBOT> what is 2+2?"))

	assert.Equal(t, []capture.SentMessage{{ChannelID: "C1", Text: AIErrorReply}}, r.sent)
	assert.Contains(t, r.logs, "overloaded")
}

func TestMentionWithThreadedReplies(t *testing.T) {
	v := newTestConfig()
	v.Set(config.ThreadedRepliesKey, true)
	v.Set(config.BroadcastThreadedRepliesKey, true)

	r := runAskscotWithIncomingEvents(t, v, answering("4", nil), nil, newMentionEvent("1", "<@UBOT> what is 2+2?"))

	assert.Equal(t, []capture.SentMessage{{ChannelID: "C1", Text: "4", ThreadTimestamp: "1547785956.0001", Broadcast: true}}, r.sent)
}

func TestReplyStaysInExistingThread(t *testing.T) {
	e := newEventsAPIEvent("env-1", "Ev1", map[string]interface{}{"type": "app_mention", "text": "<@UBOT> and now?", "user": "U1", "channel": "C1", "ts": "2.000", "thread_ts": "1.000"})

	r := runAskscotWithIncomingEvents(t, newTestConfig(), answering("later", nil), nil, e)

	assert.Equal(t, []capture.SentMessage{{ChannelID: "C1", Text: "later", ThreadTimestamp: "1.000"}}, r.sent)
}

func TestDirectMessageAnsweredWithAI(t *testing.T) {
	r := runAskscotWithIncomingEvents(t, newTestConfig(), answering("Paris", nil), nil, newDirectMessageEvent("1", "capital of France?"))

	assert.Equal(t, []capture.SentMessage{{ChannelID: "D1", Text: "Paris"}}, r.sent)
}

func TestDirectMessageWithoutAIGetsInformationalReply(t *testing.T) {
	r := runAskscotWithIncomingEvents(t, newTestConfig(), nil, nil, newDirectMessageEvent("1", "capital of France?"))

	assert.Equal(t, []capture.SentMessage{{ChannelID: "D1", Text: informationalReply}}, r.sent)
}

func TestDirectMessageGreeting(t *testing.T) {
	r := runAskscotWithIncomingEvents(t, newTestConfig(), answering("unused", nil), nil, newDirectMessageEvent("1", "hello bot"))

	assert.Equal(t, []capture.SentMessage{{ChannelID: "D1", Text: "Hi there! <@U1>"}}, r.sent)
}

func TestChannelGreeting(t *testing.T) {
	e := newEventsAPIEvent("env-1", "Ev1", map[string]interface{}{"type": "message", "channel_type": "channel", "text": "hello everyone", "user": "U2", "channel": "C1", "ts": "1.000"})

	r := runAskscotWithIncomingEvents(t, newTestConfig(), nil, nil, e)

	assert.Equal(t, []capture.SentMessage{{ChannelID: "C1", Text: "Hi there! <@U2>"}}, r.sent)
}

func TestMentionWithGreetingGetsSingleReply(t *testing.T) {
	message := newEventsAPIEvent("env-1", "Ev1", map[string]interface{}{"type": "message", "channel_type": "channel", "text": "<@UBOT> hello", "user": "U1", "channel": "C1", "ts": "1.000"})
	mention := newEventsAPIEvent("env-2", "Ev2", map[string]interface{}{"type": "app_mention", "text": "<@UBOT> hello", "user": "U1", "channel": "C1", "ts": "1.000"})

	r := runAskscotWithIncomingEvents(t, newTestConfig(), nil, nil, message, mention)

	assert.Equal(t, []string{"env-1", "env-2"}, r.acks)
	if assert.Len(t, r.sent, 1) {
		assert.Regexp(t, timestampReplyPattern, r.sent[0].Text)
	}
}

func TestChannelMessageIgnored(t *testing.T) {
	e := newEventsAPIEvent("env-1", "Ev1", map[string]interface{}{"type": "message", "channel_type": "channel", "text": "what is 2+2?", "user": "U2", "channel": "C1", "ts": "1.000"})

	r := runAskscotWithIncomingEvents(t, newTestConfig(), answering("4", nil), nil, e)

	assert.Equal(t, []string{"env-1"}, r.acks)
	assert.Empty(t, r.sent)
}

func TestBotMessagesIgnored(t *testing.T) {
	fromOtherBot := newEventsAPIEvent("env-1", "Ev1", map[string]interface{}{"type": "message", "channel_type": "im", "text": "hello", "bot_id": "B2", "channel": "D1"})
	fromUs := newEventsAPIEvent("env-2", "Ev2", map[string]interface{}{"type": "message", "channel_type": "im", "text": "Hi there! <@U1> hello", "user": "UBOT", "channel": "D1"})
	edited := newEventsAPIEvent("env-3", "Ev3", map[string]interface{}{"type": "message", "subtype": "message_changed", "channel_type": "im", "channel": "D1"})

	r := runAskscotWithIncomingEvents(t, newTestConfig(), answering("4", nil), nil, fromOtherBot, fromUs, edited)

	assert.Equal(t, []string{"env-1", "env-2", "env-3"}, r.acks)
	assert.Empty(t, r.sent)
}

func TestRedeliveredEventProcessedOnce(t *testing.T) {
	first := newMentionEvent("1", "<@UBOT> what is 2+2?")
	redelivery := newMentionEvent("1", "<@UBOT> what is 2+2?")
	redelivery.Request.EnvelopeID = "env-1-retry"

	r := runAskscotWithIncomingEvents(t, newTestConfig(), answering("4", nil), nil, first, redelivery)

	assert.Equal(t, []string{"env-1", "env-1-retry"}, r.acks)
	assert.Len(t, r.sent, 1)
}

func TestMalformedEventIgnored(t *testing.T) {
	raw := json.RawMessage(`{"type": "app_mention", "text": `)
	e := socketmode.Event{
		Type:    socketmode.EventTypeEventsAPI,
		Data:    slackevents.EventsAPIEvent{Type: slackevents.CallbackEvent, Data: &slackevents.EventsAPICallbackEvent{EventID: "Ev1", InnerEvent: &raw}},
		Request: &socketmode.Request{EnvelopeID: "env-1"},
	}

	r := runAskscotWithIncomingEvents(t, newTestConfig(), nil, nil, e, socketmode.Event{Type: socketmode.EventTypeEventsAPI, Data: "unexpected", Request: &socketmode.Request{EnvelopeID: "env-2"}})

	require.NoError(t, r.err)
	assert.Equal(t, []string{"env-1", "env-2"}, r.acks)
	assert.Empty(t, r.sent)
}

func TestEchoCommandRespondsOnResponseURL(t *testing.T) {
	r := runAskscotWithIncomingEvents(t, newTestConfig(), answering("unused", nil), nil, newSlashCommandEvent("env-1", "/echo", "hi there", testResponseURL))

	assert.Equal(t, []string{"env-1"}, r.acks)
	assert.Equal(t, []int{0}, r.sentAtAck)
	assert.Equal(t, []capture.SentMessage{{ResponseURL: testResponseURL, Text: "Echo: hi there"}}, r.sent)
}

func TestEchoCommandWithoutText(t *testing.T) {
	r := runAskscotWithIncomingEvents(t, newTestConfig(), nil, nil, newSlashCommandEvent("env-1", "/echo", "", testResponseURL))

	assert.Equal(t, []capture.SentMessage{{ResponseURL: testResponseURL, Text: "Echo: "}}, r.sent)
}

func TestEchoCommandWithoutResponseURLAnsweredEphemerally(t *testing.T) {
	r := runAskscotWithIncomingEvents(t, newTestConfig(), nil, nil, newSlashCommandEvent("env-1", "/echo", "hi", ""))

	assert.Equal(t, []capture.SentMessage{{ChannelID: "C1", Text: "Echo: hi", EphemeralTo: "U1"}}, r.sent)
}

func TestCustomEchoCommand(t *testing.T) {
	v := newTestConfig()
	v.Set(config.EchoCommandKey, "/parrot")

	r := runAskscotWithIncomingEvents(t, v, nil, nil, newSlashCommandEvent("env-1", "/echo", "hi", testResponseURL), newSlashCommandEvent("env-2", "/parrot", "hi", testResponseURL))

	assert.Equal(t, []string{"env-1", "env-2"}, r.acks)
	assert.Equal(t, []capture.SentMessage{{ResponseURL: testResponseURL, Text: "Echo: hi"}}, r.sent)
}

func TestUnknownCommandAckedWithoutReply(t *testing.T) {
	r := runAskscotWithIncomingEvents(t, newTestConfig(), nil, nil, newSlashCommandEvent("env-1", "/deploy", "prod", testResponseURL))

	assert.Equal(t, []string{"env-1"}, r.acks)
	assert.Empty(t, r.sent)
	assert.Contains(t, r.logs, "Ignoring unknown command [/deploy]")
}

func TestInteractiveEventsAcked(t *testing.T) {
	r := runAskscotWithIncomingEvents(t, newTestConfig(), nil, nil, socketmode.Event{Type: socketmode.EventTypeInteractive, Request: &socketmode.Request{EnvelopeID: "env-1"}})

	assert.Equal(t, []string{"env-1"}, r.acks)
	assert.Empty(t, r.sent)
}

func TestInvalidCredentialsShutsdownImmediately(t *testing.T) {
	r := runAskscotWithIncomingEvents(t, newTestConfig(), nil, nil,
		socketmode.Event{Type: socketmode.EventTypeInvalidAuth},
		newMentionEvent("1", "<@UBOT> what time is it?"))

	assert.Equal(t, ErrInvalidAuth, r.err)
	assert.Contains(t, r.logs, "Invalid credentials")
	assert.Empty(t, r.acks)
	assert.Empty(t, r.sent)
}

func TestDeliveryFailureLoggedAndNotRetried(t *testing.T) {
	r := runAskscotWithIncomingEvents(t, newTestConfig(), answering("4", nil), fmt.Errorf("channel_not_found"),
		newMentionEvent("1", "<@UBOT> what is 2+2?"),
		newMentionEvent("2", "<@UBOT> what is 3+3?"))

	require.NoError(t, r.err)
	assert.Len(t, r.sent, 2)
	assert.Equal(t, 2, strings.Count(r.logs, "Unable to deliver reply"))
	assert.Contains(t, r.logs, "channel_not_found")
}

func TestRepliesOnAChannelKeepEventOrder(t *testing.T) {
	echoing := ai.ProviderFunc(func(ctx context.Context, question string) (string, error) {
		return "re: " + question, nil
	})

	var events []socketmode.Event
	var expected []string
	for i := 0; i < 20; i++ {
		events = append(events, newDirectMessageEvent(fmt.Sprintf("%d", i), fmt.Sprintf("question %d", i)))
		expected = append(expected, fmt.Sprintf("re: question %d", i))
	}

	r := runAskscotWithIncomingEvents(t, newTestConfig(), echoing, nil, events...)

	var replies []string
	for _, m := range r.sent {
		replies = append(replies, m.Text)
	}
	assert.Equal(t, expected, replies)
}

func TestConnectionEventsLogged(t *testing.T) {
	r := runAskscotWithIncomingEvents(t, newTestConfig(), nil, nil,
		socketmode.Event{Type: socketmode.EventTypeConnecting},
		socketmode.Event{Type: socketmode.EventTypeConnectionError, Data: fmt.Errorf("dial tcp: timeout")})

	require.NoError(t, r.err)
	assert.Contains(t, r.logs, "Connecting to slack with socket mode...")
	assert.Contains(t, r.logs, "Connected to slack as [UBOT]")
	assert.Contains(t, r.logs, "Error: [connection_error]: dial tcp: timeout")
}

func TestEventLoopStopsOnCancel(t *testing.T) {
	s, err := New("chickadee", newTestConfig(), OptionLog(log.New(&strings.Builder{}, "", 0)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = s.handleIncomingEvents(ctx, make(chan socketmode.Event), &ackCaptor{driver: capture.NewChatDriver()}, capture.NewChatDriver())
	assert.NoError(t, err)
}

func TestInvalidPartitionCount(t *testing.T) {
	v := newTestConfig()
	v.Set(config.MessageProcessingPartitionCount, 3)

	s, err := New("chickadee", v, OptionLog(log.New(&strings.Builder{}, "", 0)))
	require.NoError(t, err)

	err = s.handleIncomingEvents(context.Background(), make(chan socketmode.Event), &ackCaptor{driver: capture.NewChatDriver()}, capture.NewChatDriver())
	assert.Error(t, err)
}

func TestInvalidProcessedEventCacheSize(t *testing.T) {
	v := newTestConfig()
	v.Set(config.ProcessedEventCacheSizeKey, 0)

	_, err := New("chickadee", v)
	assert.Error(t, err)
}

func TestLogfileOverrideUsed(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test")
	require.NoError(t, err)

	defer os.Remove(tmpfile.Name()) // clean up

	s, err := New("chickadee", newTestConfig(), OptionLogfile(tmpfile))
	require.NoError(t, err)

	ec := make(chan socketmode.Event, 1)
	ec <- socketmode.Event{Type: socketmode.EventTypeConnecting}
	close(ec)

	require.NoError(t, s.handleIncomingEvents(context.Background(), ec, &ackCaptor{driver: capture.NewChatDriver()}, capture.NewChatDriver()))

	logs, err := os.ReadFile(tmpfile.Name())
	require.NoError(t, err)

	assert.Contains(t, string(logs), "Connecting to slack with socket mode...")
}

func TestInvalidQueueBufferSize(t *testing.T) {
	v := newTestConfig()
	v.Set(config.MessageProcessingBufferedMessageCount, -1)

	s, err := New("chickadee", v, OptionLog(log.New(&strings.Builder{}, "", 0)))
	require.NoError(t, err)

	err = s.handleIncomingEvents(context.Background(), make(chan socketmode.Event), &ackCaptor{driver: capture.NewChatDriver()}, capture.NewChatDriver())
	assert.Error(t, err)
}

func TestRunUntilTerminatedCancelsOnTerminationSignal(t *testing.T) {
	s, err := New("chickadee", newTestConfig(), OptionLog(log.New(&strings.Builder{}, "", 0)))
	require.NoError(t, err)

	err = s.runUntilTerminated(func(ctx context.Context) error {
		// The signal is intercepted while run executes
		if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
			return fmt.Errorf("context not cancelled on termination signal")
		}
	})

	assert.NoError(t, err)
}

func TestRunUntilTerminatedReturnsRunError(t *testing.T) {
	s, err := New("chickadee", newTestConfig(), OptionLog(log.New(&strings.Builder{}, "", 0)))
	require.NoError(t, err)

	var runCtx context.Context
	err = s.runUntilTerminated(func(ctx context.Context) error {
		runCtx = ctx
		return ErrInvalidAuth
	})

	assert.Equal(t, ErrInvalidAuth, err)
	// Signal interception is released once run returns
	assert.Equal(t, context.Canceled, runCtx.Err())
}
