package askscot

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instrumenter holds data for core instrumentation
type instrumenter struct {
	appName     string
	coreMetrics coreMetrics
}

// coreMetrics holds core askscot metrics
type coreMetrics struct {
	eventsSeen                   metric.Int64Counter
	duplicateEvents              metric.Int64Counter
	decisions                    metric.Int64Counter
	deliveryErrors               metric.Int64Counter
	eventProcessingLatencyMillis metric.Int64Histogram
	eventDispatchLatencyMillis   metric.Int64Histogram
}

// newInstrumenter creates a new core instrumenter
func newInstrumenter(appName string, meter metric.Meter) (ins *instrumenter, err error) {
	ins = new(instrumenter)
	ins.appName = appName

	cm := &ins.coreMetrics
	if cm.eventsSeen, err = meter.Int64Counter("eventsSeen"); err != nil {
		return nil, err
	}

	if cm.duplicateEvents, err = meter.Int64Counter("duplicateEvents"); err != nil {
		return nil, err
	}

	if cm.decisions, err = meter.Int64Counter("replyDecisions"); err != nil {
		return nil, err
	}

	if cm.deliveryErrors, err = meter.Int64Counter("deliveryErrors"); err != nil {
		return nil, err
	}

	if cm.eventProcessingLatencyMillis, err = meter.Int64Histogram("eventProcessingLatencyMillis", metric.WithUnit("ms")); err != nil {
		return nil, err
	}

	if cm.eventDispatchLatencyMillis, err = meter.Int64Histogram("eventDispatchLatencyMillis", metric.WithUnit("ms")); err != nil {
		return nil, err
	}

	return ins, nil
}

// withName returns the measurement option labeling a measure with the app name and extra attributes
func (ins *instrumenter) withName(attrs ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(append([]attribute.KeyValue{attribute.String("name", ins.appName)}, attrs...)...)
}

// eventSeen counts a routed event by kind
func (ins *instrumenter) eventSeen(ctx context.Context, k Kind) {
	ins.coreMetrics.eventsSeen.Add(ctx, 1, ins.withName(attribute.String("kind", k.String())))
}

// duplicateEvent counts a dropped redelivered event
func (ins *instrumenter) duplicateEvent(ctx context.Context) {
	ins.coreMetrics.duplicateEvents.Add(ctx, 1, ins.withName())
}

// decided counts a reply decision by type
func (ins *instrumenter) decided(ctx context.Context, d ReplyDecision) {
	ins.coreMetrics.decisions.Add(ctx, 1, ins.withName(attribute.String("decision", d.decision())))
}

// deliveryFailed counts a reply that couldn't be delivered
func (ins *instrumenter) deliveryFailed(ctx context.Context, k Kind) {
	ins.coreMetrics.deliveryErrors.Add(ctx, 1, ins.withName(attribute.String("kind", k.String())))
}

// processed records the processing duration of an event by kind
func (ins *instrumenter) processed(ctx context.Context, k Kind, d time.Duration) {
	ins.coreMetrics.eventProcessingLatencyMillis.Record(ctx, d.Milliseconds(), ins.withName(attribute.String("kind", k.String())))
}

// dispatched records the time taken to hand an event to its partition
func (ins *instrumenter) dispatched(ctx context.Context, d time.Duration) {
	ins.coreMetrics.eventDispatchLatencyMillis.Record(ctx, d.Milliseconds(), ins.withName())
}

type timed func()

// measure returns the execution duration of a timed function
func measure(operation timed) (d time.Duration) {
	before := time.Now()

	operation()

	return time.Since(before)
}
