// Package gatewaymetrics exposes gateway-operation counters and
// latencies through OpenTelemetry's metric API, backed by a Prometheus
// exporter.
package gatewaymetrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Op labels a gateway operation for the OpCount/OpLatency/OpErrorCount
// metrics.
type Op string

const (
	OpCreateAccount Op = "create_account"
	OpDeleteAccount Op = "delete_account"
	OpReadAccount   Op = "read_account"
	OpCreateBucket  Op = "create_bucket"
	OpLookupBucket  Op = "lookup_bucket"
	OpDeleteBucket  Op = "delete_bucket"
	OpCreateObject  Op = "create_object"
	OpReadObject    Op = "read_object"
	OpUpdateObject  Op = "update_object"
	OpDeleteObject  Op = "delete_object"
)

// Handle is the metrics capability gateway handlers depend on, split by
// concern so a caller that only cares about counts doesn't have to reach
// through a latency-recording API to get them.
type Handle interface {
	OpCount(ctx context.Context, op Op, inc int64)
	OpLatency(ctx context.Context, op Op, d time.Duration)
	OpErrorCount(ctx context.Context, op Op, code string)
	ProbeSteps(ctx context.Context, op Op, steps int64)
	ExtentAllocations(ctx context.Context, inc int64)
}

var defaultLatencyDistribution = metric.WithExplicitBucketBoundaries(
	1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100, 130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 5000, 10000,
)

type otelHandle struct {
	opCount           metric.Int64Counter
	opLatency         metric.Float64Histogram
	opErrorCount      metric.Int64Counter
	probeSteps        metric.Int64Histogram
	extentAllocations metric.Int64Counter
}

// New builds a Handle registering its instruments against meter, which
// callers obtain from an otel MeterProvider wired to a Prometheus
// exporter (see cmd/serve.go).
func New(meter metric.Meter) (Handle, error) {
	opCount, err := meter.Int64Counter("gateway/op_count", metric.WithDescription("Number of gateway operations processed, by op"))
	if err != nil {
		return nil, err
	}
	opLatency, err := meter.Float64Histogram("gateway/op_latency", metric.WithDescription("Gateway operation latency in milliseconds"), metric.WithUnit("ms"), defaultLatencyDistribution)
	if err != nil {
		return nil, err
	}
	opErrorCount, err := meter.Int64Counter("gateway/op_error_count", metric.WithDescription("Number of gateway operations that failed, by op and error code"))
	if err != nil {
		return nil, err
	}
	probeSteps, err := meter.Int64Histogram("gateway/probe_steps", metric.WithDescription("Open-addressing probe steps taken per placement operation"))
	if err != nil {
		return nil, err
	}
	extentAllocations, err := meter.Int64Counter("gateway/extent_allocations", metric.WithDescription("Number of extent runs prepared by the allocator"))
	if err != nil {
		return nil, err
	}

	return &otelHandle{
		opCount:           opCount,
		opLatency:         opLatency,
		opErrorCount:      opErrorCount,
		probeSteps:        probeSteps,
		extentAllocations: extentAllocations,
	}, nil
}

func (h *otelHandle) OpCount(ctx context.Context, op Op, inc int64) {
	h.opCount.Add(ctx, inc, metric.WithAttributes(attribute.String("op", string(op))))
}

func (h *otelHandle) OpLatency(ctx context.Context, op Op, d time.Duration) {
	h.opLatency.Record(ctx, float64(d.Microseconds())/1000, metric.WithAttributes(attribute.String("op", string(op))))
}

func (h *otelHandle) OpErrorCount(ctx context.Context, op Op, code string) {
	h.opErrorCount.Add(ctx, 1, metric.WithAttributes(attribute.String("op", string(op)), attribute.String("code", code)))
}

func (h *otelHandle) ProbeSteps(ctx context.Context, op Op, steps int64) {
	h.probeSteps.Record(ctx, steps, metric.WithAttributes(attribute.String("op", string(op))))
}

func (h *otelHandle) ExtentAllocations(ctx context.Context, inc int64) {
	h.extentAllocations.Add(ctx, inc)
}

// Noop is a Handle that discards every measurement, used when no
// MeterProvider is configured (e.g. in unit tests).
type Noop struct{}

func (Noop) OpCount(context.Context, Op, int64)           {}
func (Noop) OpLatency(context.Context, Op, time.Duration) {}
func (Noop) OpErrorCount(context.Context, Op, string)     {}
func (Noop) ProbeSteps(context.Context, Op, int64)        {}
func (Noop) ExtentAllocations(context.Context, int64)     {}
