// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for cache operations.
var (
	tracer = otel.Tracer("squad.cache")
	meter  = otel.Meter("squad.cache")
)

// Metrics for cache operations.
var (
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	cacheWrites     metric.Int64Counter
	cacheDeletes    metric.Int64Counter
	cacheGetLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"squad_cache_hits_total",
			metric.WithDescription("Total number of cache hits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"squad_cache_misses_total",
			metric.WithDescription("Total number of cache misses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheWrites, err = meter.Int64Counter(
			"squad_cache_writes_total",
			metric.WithDescription("Total number of accepted cache writes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheDeletes, err = meter.Int64Counter(
			"squad_cache_deletes_total",
			metric.WithDescription("Total number of cache deletes that removed an entry"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheGetLatency, err = meter.Float64Histogram(
			"squad_cache_get_duration_seconds",
			metric.WithDescription("Duration of cache get operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func groupAttr(group string) metric.AddOption {
	return metric.WithAttributes(attribute.String("group", group))
}

// recordHit records a cache hit metric.
func recordHit(ctx context.Context, group string) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1, groupAttr(group))
}

// recordMiss records a cache miss metric.
func recordMiss(ctx context.Context, group string) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheMisses.Add(ctx, 1, groupAttr(group))
}

func recordWrite(ctx context.Context, group string) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheWrites.Add(ctx, 1, groupAttr(group))
}

func recordDelete(ctx context.Context, group string) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheDeletes.Add(ctx, 1, groupAttr(group))
}

// recordGetLatency records the latency of a cache get operation.
func recordGetLatency(ctx context.Context, duration time.Duration, hit bool) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheGetLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("hit", hit)),
	)
}

// startSpan creates a span for a cache operation.
func startSpan(ctx context.Context, operation, key, group string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Cache."+operation,
		trace.WithAttributes(
			attribute.String("cache.operation", operation),
			attribute.String("cache.key", key),
			attribute.String("cache.group", group),
		),
	)
}

func hitAttr(hit bool) attribute.KeyValue {
	return attribute.Bool("cache.hit", hit)
}
