package ai

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/alexandre-normand/askscot/ai"

// providerWithTelemetry implements Provider with the Answer method wrapped
// with open telemetry metrics and a span
type providerWithTelemetry struct {
	base             Provider
	attrs            metric.MeasurementOption
	callCounter      metric.Int64Counter
	errCounter       metric.Int64Counter
	answerTimeMillis metric.Int64Histogram
	tracer           trace.Tracer
}

// NewProviderWithTelemetry returns an instance of the Provider decorated with open telemetry timing and count metrics
func NewProviderWithTelemetry(base Provider, name string, meter metric.Meter) (p Provider, err error) {
	pt := providerWithTelemetry{base: base, attrs: metric.WithAttributes(attribute.String("name", name))}

	if pt.callCounter, err = meter.Int64Counter("provider_Answer_Calls"); err != nil {
		return nil, err
	}

	if pt.errCounter, err = meter.Int64Counter("provider_Answer_Errors"); err != nil {
		return nil, err
	}

	if pt.answerTimeMillis, err = meter.Int64Histogram("provider_Answer_ProcessingTimeMillis", metric.WithUnit("ms")); err != nil {
		return nil, err
	}

	pt.tracer = otel.Tracer(instrumentationName)

	return pt, nil
}

// Answer implements Provider
func (_d providerWithTelemetry) Answer(ctx context.Context, question string) (answer string, err error) {
	ctx, span := _d.tracer.Start(ctx, "Provider.Answer")
	_since := time.Now()
	defer func() {
		if err != nil {
			_d.errCounter.Add(ctx, 1, _d.attrs)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		_d.callCounter.Add(ctx, 1, _d.attrs)
		_d.answerTimeMillis.Record(ctx, time.Since(_since).Milliseconds(), _d.attrs)
		span.End()
	}()
	return _d.base.Answer(ctx, question)
}
