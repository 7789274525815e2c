package otelmetric

import (
	"context"
	"testing"

	"github.com/IvanBrykalov/memorycache/cache"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, agg metricdata.Aggregation, reason string) int64 {
	t.Helper()
	sum, ok := agg.(metricdata.Sum[int64])
	require.True(t, ok, "want Sum[int64], got %T", agg)
	var total int64
	for _, dp := range sum.DataPoints {
		if reason != "" {
			v, ok := dp.Attributes.Value("reason")
			if !ok || v.AsString() != reason {
				continue
			}
		}
		total += dp.Value
	}
	return total
}

func TestAdapter_RecordsCacheTraffic(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	a, err := New(mp, attribute.String("cache", "test"))
	require.NoError(t, err)

	c, err := cache.New(cache.Options[string, int]{Metrics: a})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", 1))
	require.NoError(t, c.Set(ctx, "a", 2))
	_, _, _ = c.Get(ctx, "a")
	_, _, _ = c.Get(ctx, "a")
	_, _, _ = c.Get(ctx, "missing")

	data := collect(t, reader)
	require.Equal(t, int64(2), sumOf(t, data["cache.hits"], ""))
	require.Equal(t, int64(1), sumOf(t, data["cache.misses"], ""))
	require.Equal(t, int64(1), sumOf(t, data["cache.evictions"], "replaced"))

	gauge, ok := data["cache.entries"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	require.Equal(t, int64(1), gauge.DataPoints[0].Value)
}
