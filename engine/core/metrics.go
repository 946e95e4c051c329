package core

import "sync/atomic"

// MetricKind selects one of the resource counters.
type MetricKind uint8

const (
	// Native textures currently alive.
	MetricNativeTextures MetricKind = iota
	// Native views (render target, depth stencil, shader resource) currently alive.
	MetricNativeViews
	// Sub-views materialized since start.
	MetricSubViews
	// Sub-resources resolved from a multisampled texture since start.
	MetricResolves
	// External savable files written since start.
	MetricExternalWrites
	metricCount
)

// ResourceMetrics is a point in time copy of the counters.
type ResourceMetrics struct {
	NativeTextures int64
	NativeViews    int64
	SubViews       int64
	Resolves       int64
	ExternalWrites int64
}

var metricsState [metricCount]atomic.Int64

func MetricsAdd(kind MetricKind, delta int64) {
	if kind >= metricCount {
		return
	}
	metricsState[kind].Add(delta)
}

func MetricsSnapshot() ResourceMetrics {
	return ResourceMetrics{
		NativeTextures: metricsState[MetricNativeTextures].Load(),
		NativeViews:    metricsState[MetricNativeViews].Load(),
		SubViews:       metricsState[MetricSubViews].Load(),
		Resolves:       metricsState[MetricResolves].Load(),
		ExternalWrites: metricsState[MetricExternalWrites].Load(),
	}
}

func MetricsReset() {
	for i := range metricsState {
		metricsState[i].Store(0)
	}
}
