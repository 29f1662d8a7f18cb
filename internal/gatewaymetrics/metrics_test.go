package gatewaymetrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setup(t *testing.T) (Handle, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	h, err := New(provider.Meter("sheepgate/test"))
	require.NoError(t, err)
	return h, reader
}

func TestOpCountIsRecorded(t *testing.T) {
	h, reader := setup(t)
	ctx := context.Background()

	h.OpCount(ctx, OpCreateBucket, 1)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "gateway/op_count" {
				found = true
			}
		}
	}
	require.True(t, found, "gateway/op_count must be exported after a recorded op")
}

func TestOpLatencyAndProbeStepsDoNotPanic(t *testing.T) {
	h, _ := setup(t)
	ctx := context.Background()

	h.OpLatency(ctx, OpReadObject, 5*time.Millisecond)
	h.ProbeSteps(ctx, OpCreateBucket, 3)
	h.OpErrorCount(ctx, OpLookupBucket, "NotFound")
	h.ExtentAllocations(ctx, 1)
}

func TestNoopHandleIsSafeToCall(t *testing.T) {
	var n Noop
	ctx := context.Background()
	n.OpCount(ctx, OpCreateAccount, 1)
	n.OpLatency(ctx, OpCreateAccount, time.Second)
	n.OpErrorCount(ctx, OpCreateAccount, "Unknown")
	n.ProbeSteps(ctx, OpCreateAccount, 1)
	n.ExtentAllocations(ctx, 1)
}
