package askscot

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexandre-normand/askscot/ai"
	"github.com/alexandre-normand/askscot/config"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLogPrefix = "askscot: "
	defaultLogFlag   = log.Lshortfile | log.LstdFlags
)

// ErrInvalidAuth is returned by Run when slack rejects our credentials
var ErrInvalidAuth = errors.New("invalid slack credentials")

// Askscot represents what defines a Slack bot answering questions: a name, its configuration
// and, optionally, an answer provider
type Askscot struct {
	name   string
	config *viper.Viper

	timeLoc                  *time.Location
	echoCommand              string
	threadedReplies          bool
	broadcastThreadedReplies bool

	policy   *ResponsePolicy
	provider ai.Provider

	// processedEvents holds the ids of recently processed events to drop the ones slack redelivers
	processedEvents *lru.ARCCache

	// self is our own identity, resolved on connection
	self Identity

	log   *sLogger
	meter metric.Meter
	*instrumenter
}

// Option defines an option for an Askscot
type Option func(*Askscot)

// OptionLog sets a logger for Askscot
func OptionLog(logger *log.Logger) func(*Askscot) {
	return func(s *Askscot) {
		s.log.logger = logger
	}
}

// OptionLogfile sets a logfile for Askscot while using the other default logging prefix and options
func OptionLogfile(logfile *os.File) func(*Askscot) {
	return func(s *Askscot) {
		s.log.logger = log.New(logfile, defaultLogPrefix, defaultLogFlag)
	}
}

// OptionMeter sets the open telemetry meter used to instrument Askscot. Metrics
// are not recorded unless a meter is set
func OptionMeter(meter metric.Meter) func(*Askscot) {
	return func(s *Askscot) {
		s.meter = meter
	}
}

// New creates a new Askscot from a name and configuration
func New(name string, v *viper.Viper, options ...Option) (s *Askscot, err error) {
	s = new(Askscot)
	s.name = name
	s.config = v
	s.echoCommand = v.GetString(config.EchoCommandKey)
	s.threadedReplies = v.GetBool(config.ThreadedRepliesKey)
	s.broadcastThreadedReplies = v.GetBool(config.BroadcastThreadedRepliesKey)
	s.log = NewSLogger(log.New(os.Stdout, defaultLogPrefix, defaultLogFlag), v.GetBool(config.DebugKey))
	s.meter = noop.NewMeterProvider().Meter(name)

	for _, opt := range options {
		opt(s)
	}

	if s.timeLoc, err = config.GetTimeLocation(v); err != nil {
		return nil, err
	}

	if s.processedEvents, err = lru.NewARC(v.GetInt(config.ProcessedEventCacheSizeKey)); err != nil {
		return nil, errors.Wrapf(err, "invalid [%s]", config.ProcessedEventCacheSizeKey)
	}

	if s.instrumenter, err = newInstrumenter(name, s.meter); err != nil {
		return nil, err
	}

	s.policy = NewResponsePolicy(nil, s.timeLoc, s.log)

	return s, nil
}

// RegisterAnswerProvider registers the provider answering questions. This should be invoked
// prior to calling Run. Without a provider, questions get deterministic replies
func (s *Askscot) RegisterAnswerProvider(p ai.Provider) (err error) {
	if p == nil {
		return nil
	}

	if s.provider, err = ai.NewProviderWithTelemetry(p, s.name, s.meter); err != nil {
		return err
	}

	s.policy = NewResponsePolicy(s.provider, s.timeLoc, s.log)

	return nil
}

// Run starts Askscot and loops until the process is interrupted
func (s *Askscot) Run() (err error) {
	return s.runUntilTerminated(s.RunContext)
}

// RunContext connects to slack with socket mode and processes events until ctx is done or
// slack rejects our credentials
func (s *Askscot) RunContext(ctx context.Context) (err error) {
	debug := s.config.GetBool(config.DebugKey)
	slackLogger := log.New(os.Stdout, "slack: ", defaultLogFlag)

	api := slack.New(
		s.config.GetString(config.BotTokenKey),
		slack.OptionAppLevelToken(s.config.GetString(config.AppTokenKey)),
		slack.OptionDebug(debug),
		slack.OptionLog(slackLogger),
	)

	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return errors.Wrap(err, "slack authentication failed")
	}

	s.cacheSelfIdentity(auth)

	driver, err := newChatDriverWithTelemetry(slackChatDriver{Client: api}, s.name, s.meter)
	if err != nil {
		return err
	}

	sm := socketmode.New(api, socketmode.OptionDebug(debug), socketmode.OptionLog(slackLogger))

	s.log.Printf("Starting [%s] in socket mode (answering with AI: %t)\n", s.name, s.policy.AIAvailable())

	// Either one terminating stops the other
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sm.RunContext(gctx); err != nil && gctx.Err() == nil {
			return errors.Wrap(err, "socket mode connection terminated")
		}

		return nil
	})
	g.Go(func() error {
		return s.handleIncomingEvents(gctx, sm.Events, sm, driver)
	})

	return g.Wait()
}

// runUntilTerminated calls run with a context cancelled on SIGINT or SIGTERM. Termination
// signals are only intercepted until run returns
func (s *Askscot) runUntilTerminated(run func(ctx context.Context) error) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx)
	if ctx.Err() != nil {
		s.log.Debugf("Received termination signal, terminated event processing\n")
	}

	return err
}

// cacheSelfIdentity keeps our user and bot ids to recognize our own messages and mentions
func (s *Askscot) cacheSelfIdentity(auth *slack.AuthTestResponse) {
	s.self = Identity{UserID: auth.UserID, BotID: auth.BotID}

	s.log.Debugf("Caching self id [%s] and bot id [%s]\n", s.self.UserID, s.self.BotID)
}

// handleIncomingEvents acks and routes incoming socket mode events to the partitioned workers until
// ctx is done, events is closed or slack rejects our credentials. Events being processed when that
// happens are processed to completion before returning
func (s *Askscot) handleIncomingEvents(ctx context.Context, events <-chan socketmode.Event, acker acker, driver chatDriver) (err error) {
	pr, err := newPartitionRouter(s.config.GetInt(config.MessageProcessingPartitionCount), s.config.GetInt(config.MessageProcessingBufferedMessageCount), s.log, s.instrumenter)
	if err != nil {
		return err
	}

	// Processing isn't cancelled with the event loop: started replies run to completion
	processingCtx := context.WithoutCancel(ctx)
	pr.start(func(e RoutedEvent) {
		s.processEvent(processingCtx, driver, e)
	})
	defer pr.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-events:
			if !ok {
				return nil
			}

			if err = s.handleEvent(evt, acker, pr); err != nil {
				return err
			}
		}
	}
}

// handleEvent handles a single socket mode event. Events API and slash command requests are
// always acked before anything else
func (s *Askscot) handleEvent(evt socketmode.Event, acker acker, pr *partitionRouter) (err error) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		s.log.Printf("Connecting to slack with socket mode...\n")

	case socketmode.EventTypeConnected:
		s.log.Printf("Connected to slack as [%s]\n", s.self.UserID)

	case socketmode.EventTypeHello:
		s.log.Debugf("Received hello from slack\n")

	case socketmode.EventTypeDisconnect:
		s.log.Printf("Disconnected from slack, reconnecting\n")

	case socketmode.EventTypeConnectionError, socketmode.EventTypeIncomingError, socketmode.EventTypeErrorBadMessage, socketmode.EventTypeErrorWriteFailed:
		s.log.Errorf("[%s]: %v\n", evt.Type, evt.Data)

	case socketmode.EventTypeInvalidAuth:
		s.log.Printf("Invalid credentials\n")
		return ErrInvalidAuth

	case socketmode.EventTypeEventsAPI:
		s.ack(evt, acker)
		s.processEventsAPIEvent(evt, pr)

	case socketmode.EventTypeSlashCommand:
		s.ack(evt, acker)
		s.processSlashCommand(evt, pr)

	case socketmode.EventTypeInteractive:
		s.ack(evt, acker)

	default:
		s.log.Debugf("Ignoring event of type [%s]\n", evt.Type)
	}

	return nil
}

// ack acknowledges the event's request, if any
func (s *Askscot) ack(evt socketmode.Event, acker acker) {
	if evt.Request != nil {
		acker.Ack(*evt.Request)
	}
}

// processEventsAPIEvent classifies an Events API callback and routes it for processing
// unless it's a redelivery or it can't trigger any reply
func (s *Askscot) processEventsAPIEvent(evt socketmode.Event, pr *partitionRouter) {
	payload, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok || payload.Type != slackevents.CallbackEvent {
		s.log.Debugf("Ignoring events api payload [%v]\n", evt.Data)
		return
	}

	cb, ok := payload.Data.(*slackevents.EventsAPICallbackEvent)
	if !ok || cb.InnerEvent == nil {
		s.log.Debugf("Ignoring callback without inner event [%v]\n", payload.Data)
		return
	}

	if s.isRedelivery(cb.EventID) {
		s.log.Debugf("Dropping redelivered event [%s]\n", cb.EventID)
		s.duplicateEvent(context.Background())
		return
	}

	raw, err := decodeRawEvent(*cb.InnerEvent)
	if err != nil {
		s.log.Debugf("Ignoring malformed event [%s]: %v\n", cb.EventID, err)
		return
	}

	e := Classify(raw, s.self)
	s.eventSeen(context.Background(), e.Kind)

	if e.Kind == Ignored && !e.Greeting {
		s.log.Debugf("Ignoring [%s] event on channel [%s]\n", raw.Type(), e.ChannelID)
		return
	}

	pr.routeEvent(e)
}

// processSlashCommand classifies a slash command and routes it for processing
func (s *Askscot) processSlashCommand(evt socketmode.Event, pr *partitionRouter) {
	cmd, ok := evt.Data.(slack.SlashCommand)
	if !ok {
		s.log.Debugf("Ignoring unexpected slash command payload [%v]\n", evt.Data)
		return
	}

	e := ClassifyCommand(cmd, s.echoCommand)
	s.eventSeen(context.Background(), e.Kind)

	if e.Kind == Ignored {
		s.log.Printf("Ignoring unknown command [%s] from user [%s]\n", cmd.Command, cmd.UserID)
		return
	}

	pr.routeEvent(e)
}

// isRedelivery returns true if the event id was seen before and remembers it otherwise
func (s *Askscot) isRedelivery(eventID string) bool {
	if eventID == "" {
		return false
	}

	if s.processedEvents.Contains(eventID) {
		return true
	}

	s.processedEvents.Add(eventID, true)
	return false
}

// decodeRawEvent decodes an inner event
func decodeRawEvent(data json.RawMessage) (raw RawEvent, err error) {
	raw = make(RawEvent)
	if err = json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	return raw, nil
}

// processEvent decides on the reply to a routed event, composes it and delivers it. Delivery
// failures are logged and never retried
func (s *Askscot) processEvent(ctx context.Context, driver chatDriver, e RoutedEvent) {
	d := measure(func() {
		s.logEvent(e)

		answer := s.Reply(ctx, e)
		if answer == nil {
			return
		}

		if err := deliver(ctx, driver, e.ChannelID, answer); err != nil {
			s.log.Errorf("Unable to deliver reply to [%s] event on channel [%s]: %v\n", e.Kind, e.ChannelID, err)
			s.deliveryFailed(ctx, e.Kind)
		}
	})

	s.processed(ctx, e.Kind, d)
}

// Reply returns the answer to a routed event along with its delivery options or nil
// when the event gets no reply
func (s *Askscot) Reply(ctx context.Context, e RoutedEvent) (answer *Answer) {
	decision := s.policy.Decide(e)
	s.decided(ctx, decision)

	text, ok := s.policy.Compose(ctx, decision)
	if !ok {
		return nil
	}

	return &Answer{Text: text, Options: s.answerOptions(e)}
}

func (s *Askscot) logEvent(e RoutedEvent) {
	switch {
	case e.Kind == Mention:
		s.log.Printf("Mentioned by user [%s]: %s\n", e.UserID, e.RawText)
	case e.Kind == SlashCommand:
		s.log.Printf("Command [%s] from user [%s]: %s\n", e.Command, e.UserID, e.RawText)
	case e.Greeting:
		s.log.Printf("User [%s] said hello\n", e.UserID)
	case e.Kind == DirectMessage:
		s.log.Printf("Received direct message from user [%s]: %s\n", e.UserID, e.RawText)
	}
}

// answerOptions returns the delivery options for the reply to a routed event. Slash commands are
// answered on their response url (or ephemerally to the user without one). Replies to messages
// already in a thread stay in that thread and mentions start one when threaded replies are enabled
func (s *Askscot) answerOptions(e RoutedEvent) (opts []AnswerOption) {
	if e.Kind == SlashCommand {
		if e.ResponseURL != "" {
			return []AnswerOption{AnswerToResponseURL(e.ResponseURL)}
		}

		return []AnswerOption{AnswerEphemeral(e.UserID)}
	}

	threadTimestamp := e.ThreadTimestamp
	if threadTimestamp == "" && e.Kind == Mention && s.threadedReplies {
		threadTimestamp = e.Timestamp
	}

	if threadTimestamp == "" {
		return nil
	}

	opts = append(opts, AnswerInExistingThread(threadTimestamp))
	if s.broadcastThreadedReplies {
		opts = append(opts, AnswerWithBroadcast())
	}

	return opts
}
