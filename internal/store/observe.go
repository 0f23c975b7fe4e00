package store

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/model"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Rodney-akong/Alx-DjangoLearnLab/internal/store"

type observer struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	ops      metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
	slow     time.Duration
}

func newObserver() *observer {
	o := &observer{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		slow:   200 * time.Millisecond,
	}
	o.useTracer(otel.Tracer(instrumentationName))
	o.useMeter(otel.Meter(instrumentationName))
	return o
}

func (o *observer) useTracer(t trace.Tracer) {
	o.tracer = t
}

func (o *observer) useMeter(m metric.Meter) {
	o.ops, _ = m.Int64Counter("store.operation.count",
		metric.WithDescription("Store operations executed"),
		metric.WithUnit("{operation}"),
	)
	o.failures, _ = m.Int64Counter("store.operation.errors",
		metric.WithDescription("Store operations that returned an error"),
		metric.WithUnit("{error}"),
	)
	o.duration, _ = m.Float64Histogram("store.operation.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500),
	)
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.obs.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		s.obs.useTracer(tracer)
	}
}

func WithMeter(meter metric.Meter) Option {
	return func(s *Store) {
		s.obs.useMeter(meter)
	}
}

// WithSlowThreshold sets the duration above which operations are logged at warn level.
func WithSlowThreshold(d time.Duration) Option {
	return func(s *Store) {
		s.obs.slow = d
	}
}

// observe opens a span for op and returns the function that closes it.
// Expected outcomes (not found, validation) are not recorded as span errors.
func (s *Store) observe(ctx context.Context, op string) (context.Context, func(error)) {
	o := s.obs
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", s.driver),
			attribute.String("store.operation", op),
		),
	)

	return ctx, func(err error) {
		elapsed := time.Since(start)
		attrs := metric.WithAttributes(attribute.String("operation", op))
		o.ops.Add(ctx, 1, attrs)
		o.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)

		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
		case isExpected(err):
			span.SetAttributes(attribute.String("store.outcome", err.Error()))
		default:
			o.failures.Add(ctx, 1, attrs)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.logger.ErrorContext(ctx, "store operation failed", "op", op, "error", err, "duration", elapsed)
		}
		span.End()

		if elapsed >= o.slow {
			o.logger.WarnContext(ctx, "slow store operation", "op", op, "duration", elapsed)
		} else {
			o.logger.DebugContext(ctx, "store operation", "op", op, "duration", elapsed)
		}
	}
}

func isExpected(err error) bool {
	var verrs model.ValidationErrors
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.As(err, &verrs)
}
