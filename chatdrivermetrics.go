package askscot

import (
	"context"
	"time"

	"github.com/slack-go/slack"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var chatDriverMethods = []string{"PostMessageContext", "PostEphemeralContext", "Respond"}

// chatDriverWithTelemetry implements chatDriver interface with all methods wrapped
// with open telemetry metrics
type chatDriverWithTelemetry struct {
	base                     chatDriver
	attrs                    metric.MeasurementOption
	methodCounters           map[string]metric.Int64Counter
	errCounters              map[string]metric.Int64Counter
	methodTimeValueRecorders map[string]metric.Int64Histogram
}

// newChatDriverWithTelemetry returns an instance of the chatDriver decorated with open telemetry timing and count metrics
func newChatDriverWithTelemetry(base chatDriver, name string, meter metric.Meter) (d chatDriverWithTelemetry, err error) {
	d = chatDriverWithTelemetry{
		base:                     base,
		attrs:                    metric.WithAttributes(attribute.String("name", name)),
		methodCounters:           make(map[string]metric.Int64Counter),
		errCounters:              make(map[string]metric.Int64Counter),
		methodTimeValueRecorders: make(map[string]metric.Int64Histogram),
	}

	for _, m := range chatDriverMethods {
		if d.methodCounters[m], err = meter.Int64Counter("chatDriver_" + m + "_Calls"); err != nil {
			return d, err
		}

		if d.errCounters[m], err = meter.Int64Counter("chatDriver_" + m + "_Errors"); err != nil {
			return d, err
		}

		if d.methodTimeValueRecorders[m], err = meter.Int64Histogram("chatDriver_"+m+"_ProcessingTimeMillis", metric.WithUnit("ms")); err != nil {
			return d, err
		}
	}

	return d, nil
}

// record counts a call to method along with its error, if any, and records its duration
func (_d chatDriverWithTelemetry) record(ctx context.Context, method string, since time.Time, err error) {
	if err != nil {
		_d.errCounters[method].Add(ctx, 1, _d.attrs)
	}

	_d.methodCounters[method].Add(ctx, 1, _d.attrs)
	_d.methodTimeValueRecorders[method].Record(ctx, time.Since(since).Milliseconds(), _d.attrs)
}

// PostMessageContext implements chatDriver
func (_d chatDriverWithTelemetry) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (rChannelID string, rTimestamp string, err error) {
	_since := time.Now()
	defer func() {
		_d.record(ctx, "PostMessageContext", _since, err)
	}()
	return _d.base.PostMessageContext(ctx, channelID, options...)
}

// PostEphemeralContext implements chatDriver
func (_d chatDriverWithTelemetry) PostEphemeralContext(ctx context.Context, channelID string, userID string, options ...slack.MsgOption) (rTimestamp string, err error) {
	_since := time.Now()
	defer func() {
		_d.record(ctx, "PostEphemeralContext", _since, err)
	}()
	return _d.base.PostEphemeralContext(ctx, channelID, userID, options...)
}

// Respond implements chatDriver
func (_d chatDriverWithTelemetry) Respond(ctx context.Context, responseURL string, msg *slack.WebhookMessage) (err error) {
	_since := time.Now()
	defer func() {
		_d.record(ctx, "Respond", _since, err)
	}()
	return _d.base.Respond(ctx, responseURL, msg)
}
