package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/chadiek/phone-assistant"

// Options controls the process-wide providers installed by Init.
type Options struct {
	ServiceName    string
	// StdoutTraces pretty-prints finished spans, useful when running locally.
	StdoutTraces   bool
	// StdoutMetrics prints counter totals every MetricInterval.
	StdoutMetrics  bool
	MetricInterval time.Duration
	// MetricReader is attached alongside the stdout exporter when set.
	MetricReader   sdkmetric.Reader
}

// Init installs global tracer and meter providers. The returned func flushes and
// shuts them down.
func Init(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "phone-assistant"
	}
	res := resource.NewSchemaless(attribute.String("service.name", opts.ServiceName))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if opts.StdoutTraces {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}
	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if opts.StdoutMetrics {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		interval := opts.MetricInterval
		if interval <= 0 {
			interval = time.Minute
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))))
	}
	if opts.MetricReader != nil {
		mpOpts = append(mpOpts, sdkmetric.WithReader(opts.MetricReader))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	mp := sdkmetric.NewMeterProvider(mpOpts...)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	resetMetrics()

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Tracer returns the package tracer from the current global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentation)
}

// StartSpan opens a span; call the returned func with the operation's error to end it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

var (
	metricsMu sync.Mutex
	counters  map[string]metric.Int64Counter
)

// Counter names.
const (
	ChunksProcessed     = "call.chunks.processed"
	ChunksDropped       = "call.chunks.dropped"
	ProviderFailures    = "provider.failures"
	AppointmentsCreated = "appointments.created"
	FinalizeFailures    = "appointments.finalize_failures"
	LogSinkFailures     = "calllog.sink_failures"
	MalformedMessages   = "transport.malformed_messages"
	BargeIns            = "transport.barge_ins"
)

var descriptions = map[string]string{
	ChunksProcessed:     "Audio chunks that produced a dialogue turn",
	ChunksDropped:       "Audio chunks dropped after a transcription or dialogue failure",
	ProviderFailures:    "Failed calls to STT, LLM or TTS providers",
	AppointmentsCreated: "Appointments booked by phone",
	FinalizeFailures:    "Failed appointment creation attempts",
	LogSinkFailures:     "Call log writes that failed",
	MalformedMessages:   "Transport messages that could not be decoded",
	BargeIns:            "Replies cut short because the caller started speaking",
}

func resetMetrics() {
	metricsMu.Lock()
	counters = nil
	metricsMu.Unlock()
}

func counter(name string) metric.Int64Counter {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if c, ok := counters[name]; ok {
		return c
	}
	if counters == nil {
		counters = make(map[string]metric.Int64Counter)
	}
	c, err := otel.Meter(instrumentation).Int64Counter(name, metric.WithDescription(descriptions[name]))
	if err != nil {
		return nil
	}
	counters[name] = c
	return c
}

// Inc adds one to the named counter.
func Inc(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	c := counter(name)
	if c == nil {
		return
	}
	if len(attrs) > 0 {
		c.Add(ctx, 1, metric.WithAttributes(attrs...))
		return
	}
	c.Add(ctx, 1)
}

// Provider tags a measurement with the external provider it concerns.
func Provider(name string) attribute.KeyValue {
	return attribute.String("provider", name)
}
