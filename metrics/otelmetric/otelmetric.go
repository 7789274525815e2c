// Package otelmetric exports cache.Metrics through OpenTelemetry.
package otelmetric

import (
	"context"

	"github.com/IvanBrykalov/memorycache/cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScopeName is the instrumentation scope used for the meter.
const ScopeName = "github.com/IvanBrykalov/memorycache"

// Adapter implements cache.Metrics on OpenTelemetry instruments.
type Adapter struct {
	hits    metric.Int64Counter
	misses  metric.Int64Counter
	evicts  metric.Int64Counter
	entries metric.Int64Gauge
	size    metric.Int64Gauge
	attrs   metric.MeasurementOption
}

// New creates the instruments on mp (nil => the global MeterProvider).
// attrs are attached to every measurement, e.g. a cache name.
func New(mp metric.MeterProvider, attrs ...attribute.KeyValue) (*Adapter, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(ScopeName)

	a := &Adapter{attrs: metric.WithAttributes(attrs...)}
	var err error
	if a.hits, err = meter.Int64Counter("cache.hits",
		metric.WithDescription("Cache hits"), metric.WithUnit("1")); err != nil {
		return nil, err
	}
	if a.misses, err = meter.Int64Counter("cache.misses",
		metric.WithDescription("Cache misses"), metric.WithUnit("1")); err != nil {
		return nil, err
	}
	if a.evicts, err = meter.Int64Counter("cache.evictions",
		metric.WithDescription("Cache evictions by reason"), metric.WithUnit("1")); err != nil {
		return nil, err
	}
	if a.entries, err = meter.Int64Gauge("cache.entries",
		metric.WithDescription("Number of resident entries"), metric.WithUnit("1")); err != nil {
		return nil, err
	}
	if a.size, err = meter.Int64Gauge("cache.size",
		metric.WithDescription("Sum of resident entry sizes")); err != nil {
		return nil, err
	}
	return a, nil
}

// Hit increments cache.hits.
func (a *Adapter) Hit() { a.hits.Add(context.Background(), 1, a.attrs) }

// Miss increments cache.misses.
func (a *Adapter) Miss() { a.misses.Add(context.Background(), 1, a.attrs) }

// Evict increments cache.evictions with a reason attribute.
func (a *Adapter) Evict(r cache.EvictionReason) {
	a.evicts.Add(context.Background(), 1, a.attrs,
		metric.WithAttributes(attribute.String("reason", r.String())))
}

// Size records the entry count and total size gauges.
func (a *Adapter) Size(entries int, size int64) {
	ctx := context.Background()
	a.entries.Record(ctx, int64(entries), a.attrs)
	a.size.Record(ctx, size, a.attrs)
}

var _ cache.Metrics = (*Adapter)(nil)
