// Package metrics 汇总流水线各阶段的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// GraphQueries 图查询执行次数，按结果分类（ok/rejected/error）。
	GraphQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "citylayers",
		Name:      "graph_queries_total",
		Help:      "Generated graph queries by outcome.",
	}, []string{"outcome"})

	// GraphQueryDuration 图查询耗时。
	GraphQueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "citylayers",
		Name:      "graph_query_duration_seconds",
		Help:      "Graph query latency.",
		Buckets:   prometheus.DefBuckets,
	})

	// Widenings 结果上限放宽重跑次数（ok/failed/skipped）。
	Widenings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "citylayers",
		Name:      "result_widenings_total",
		Help:      "Result-cap widening re-runs by outcome.",
	}, []string{"outcome"})

	// GeocodeLookups 逆地理编码查询（cache_hit/resolved/failed）。
	GeocodeLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "citylayers",
		Name:      "geocode_lookups_total",
		Help:      "Reverse geocoding lookups by result.",
	}, []string{"result"})

	// SourceFetches 外部数据源拉取。
	SourceFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "citylayers",
		Name:      "source_fetches_total",
		Help:      "External data source fetches by source and outcome.",
	}, []string{"source", "outcome"})

	// LLMDuration 语言模型调用耗时，按用途区分（query/answer）。
	LLMDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "citylayers",
		Name:      "llm_call_duration_seconds",
		Help:      "Language model call latency by purpose.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"purpose"})
)

// Collectors 返回全部指标，供注册到 registry。
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		GraphQueries,
		GraphQueryDuration,
		Widenings,
		GeocodeLookups,
		SourceFetches,
		LLMDuration,
	}
}

// NewRegistry 创建包含进程指标与流水线指标的 registry。
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(Collectors()...)
	return reg
}
