// Package tracing records round pool activity as OpenTelemetry spans: one span
// per round and one child span per worker callback.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fluxorio/roundpool/pkg/core/concurrency"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used for every span.
const InstrumentationName = "github.com/fluxorio/roundpool"

// Config selects and configures the span exporter
type Config struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	Exporter       string  `yaml:"exporter" json:"exporter"` // stdout, zipkin or none
	ZipkinEndpoint string  `yaml:"zipkin_endpoint" json:"zipkin_endpoint"`
	ServiceName    string  `yaml:"service_name" json:"service_name"`
	SampleRatio    float64 `yaml:"sample_ratio" json:"sample_ratio"`
}

// DefaultConfig returns a disabled stdout configuration
func DefaultConfig() Config {
	return Config{
		Exporter:    "stdout",
		ServiceName: "roundpool",
		SampleRatio: 1,
	}
}

// NewProvider builds a TracerProvider for cfg. Spans go to w for the stdout
// exporter (os.Stdout if nil). Callers own the provider and must Shutdown it.
func NewProvider(cfg Config, w io.Writer) (*sdktrace.TracerProvider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultConfig().ServiceName
	}
	if cfg.SampleRatio <= 0 || cfg.SampleRatio > 1 {
		cfg.SampleRatio = 1
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}

	switch strings.ToLower(cfg.Exporter) {
	case "", "none":
	case "stdout":
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case "zipkin":
		if cfg.ZipkinEndpoint == "" {
			return nil, errors.New("zipkin exporter requires zipkin_endpoint")
		}
		exp, err := zipkin.New(cfg.ZipkinEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create zipkin exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}

	return sdktrace.NewTracerProvider(opts...), nil
}

// roundSpan is the open span of an in-flight round
type roundSpan struct {
	span trace.Span
	ctx  trace.SpanContext
}

// Observer implements concurrency.Observer with spans
type Observer struct {
	tracer trace.Tracer

	mu     sync.Mutex
	rounds map[string]roundSpan
}

var _ concurrency.Observer = (*Observer)(nil)

// NewObserver creates an Observer that traces with tp
func NewObserver(tp trace.TracerProvider) *Observer {
	return &Observer{
		tracer: tp.Tracer(InstrumentationName),
		rounds: make(map[string]roundSpan),
	}
}

func roundAttributes(info concurrency.RoundInfo) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("roundpool.pool", info.Pool),
		attribute.String("roundpool.task", info.Task),
		attribute.String("roundpool.round.id", info.ID),
		attribute.Int64("roundpool.round.seq", int64(info.Seq)),
		attribute.Int("roundpool.workers", info.Workers),
	}
}

// RoundStarted implements concurrency.Observer
func (o *Observer) RoundStarted(info concurrency.RoundInfo) {
	_, span := o.tracer.Start(contextOf(info), "round "+info.Task,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(roundAttributes(info)...),
	)

	o.mu.Lock()
	o.rounds[info.ID] = roundSpan{span: span, ctx: span.SpanContext()}
	o.mu.Unlock()
}

// WorkerFinished implements concurrency.Observer
func (o *Observer) WorkerFinished(info concurrency.RoundInfo, id concurrency.WorkerID, elapsed time.Duration, err error) {
	o.mu.Lock()
	rs, ok := o.rounds[info.ID]
	o.mu.Unlock()
	if !ok {
		return
	}

	end := time.Now()
	parent := trace.ContextWithSpanContext(contextOf(info), rs.ctx)
	_, span := o.tracer.Start(parent, "worker",
		trace.WithTimestamp(end.Add(-elapsed)),
		trace.WithAttributes(
			attribute.String("roundpool.round.id", info.ID),
			attribute.Int("roundpool.worker.id", int(id)),
		),
	)
	recordError(span, err)
	span.End(trace.WithTimestamp(end))
}

// RoundFinished implements concurrency.Observer
func (o *Observer) RoundFinished(info concurrency.RoundInfo, elapsed time.Duration, err error) {
	o.mu.Lock()
	rs, ok := o.rounds[info.ID]
	delete(o.rounds, info.ID)
	o.mu.Unlock()
	if !ok {
		return
	}

	var roundErr *concurrency.RoundError
	if errors.As(err, &roundErr) {
		rs.span.SetAttributes(attribute.Int("roundpool.round.failures", len(roundErr.Failures)))
	}
	recordError(rs.span, err)
	rs.span.End()
}

// RoundStalled implements concurrency.Observer
func (o *Observer) RoundStalled(info concurrency.RoundInfo, complete int) {
	o.mu.Lock()
	rs, ok := o.rounds[info.ID]
	o.mu.Unlock()
	if !ok {
		return
	}
	rs.span.AddEvent("round stalled", trace.WithAttributes(
		attribute.Int("roundpool.workers.complete", complete),
	))
}

func contextOf(info concurrency.RoundInfo) context.Context {
	if info.Context == nil {
		return context.Background()
	}
	return info.Context
}

func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
