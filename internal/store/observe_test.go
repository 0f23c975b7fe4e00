package store

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/crypto/bcrypt"
)

type observedStore struct {
	*Store
	spans   *tracetest.SpanRecorder
	metrics *sdkmetric.ManualReader
	logs    *bytes.Buffer
}

func newObservedStore(t *testing.T, slow time.Duration) observedStore {
	t.Helper()
	ctx := context.Background()
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	var logs bytes.Buffer

	s, err := Open(ctx, DriverSQLite, ":memory:",
		WithBcryptCost(bcrypt.MinCost),
		WithTracer(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)).Tracer("store-test")),
		WithMeter(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("store-test")),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithSlowThreshold(slow),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return observedStore{Store: s, spans: spans, metrics: reader, logs: &logs}
}

func (o observedStore) span(t *testing.T, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, sp := range o.spans.Ended() {
		if sp.Name() == name {
			return sp
		}
	}
	t.Fatalf("no span named %q", name)
	return nil
}

// count sums the data points of an int64 counter for one operation.
func (o observedStore) count(t *testing.T, metric, op string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, o.metrics.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != metric {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is %T", metric, m.Data)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("operation"); ok && v.AsString() == op {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func attr(sp sdktrace.ReadOnlySpan, key attribute.Key) string {
	for _, kv := range sp.Attributes() {
		if kv.Key == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestObserveRecordsOperations(t *testing.T) {
	o := newObservedStore(t, time.Hour)
	ctx := context.Background()

	a := mustAuthor(t, o.Store, "Zed Shaw")
	_, err := o.Book(ctx, 42)
	require.ErrorIs(t, err, ErrNotFound)

	created := o.span(t, "store.CreateAuthor")
	assert.Equal(t, codes.Ok, created.Status().Code)
	assert.Equal(t, DriverSQLite, attr(created, "db.system"))
	assert.NotZero(t, a.ID)

	missing := o.span(t, "store.Book")
	assert.Equal(t, codes.Unset, missing.Status().Code)
	assert.Equal(t, "not found", attr(missing, "store.outcome"))

	assert.Equal(t, int64(1), o.count(t, "store.operation.count", "CreateAuthor"))
	assert.Equal(t, int64(1), o.count(t, "store.operation.count", "Book"))
	assert.Zero(t, o.count(t, "store.operation.errors", "Book"))
	assert.NotContains(t, o.logs.String(), "slow store operation")
}

func TestObserveRecordsFailures(t *testing.T) {
	o := newObservedStore(t, time.Hour)
	ctx := context.Background()
	require.NoError(t, o.Close())

	_, err := o.Author(ctx, 1)
	require.Error(t, err)

	sp := o.span(t, "store.Author")
	assert.Equal(t, codes.Error, sp.Status().Code)
	assert.Equal(t, int64(1), o.count(t, "store.operation.errors", "Author"))
	assert.Contains(t, o.logs.String(), "store operation failed")
}

func TestObserveLogsSlowOperations(t *testing.T) {
	o := newObservedStore(t, 0)
	mustAuthor(t, o.Store, "William Vincent")

	assert.Contains(t, o.logs.String(), "slow store operation")
	assert.Contains(t, o.logs.String(), "op=CreateAuthor")
}
