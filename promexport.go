package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Exporter publishes the server's counters as Prometheus metrics. It
// reads the shared Metrics/Store/EmbeddingIndex handles at scrape time
// rather than maintaining parallel counters.
type Exporter struct {
	metrics *Metrics
	store   *Store
	index   *EmbeddingIndex

	opsTotal     *prometheus.Desc
	opsByCommand *prometheus.Desc
	connections  *prometheus.Desc
	latencyAvg   *prometheus.Desc
	latencyMin   *prometheus.Desc
	latencyMax   *prometheus.Desc
	keys         *prometheus.Desc
	embeddings   *prometheus.Desc
}

// NewExporter builds an exporter over the shared handles.
func NewExporter(metrics *Metrics, store *Store, index *EmbeddingIndex) *Exporter {
	return &Exporter{
		metrics: metrics,
		store:   store,
		index:   index,
		opsTotal: prometheus.NewDesc(
			"celrix_ops_total",
			"Total commands executed.",
			nil, nil),
		opsByCommand: prometheus.NewDesc(
			"celrix_command_ops_total",
			"Commands executed by command name.",
			[]string{"command"}, nil),
		connections: prometheus.NewDesc(
			"celrix_connections_total",
			"Connections accepted.",
			nil, nil),
		latencyAvg: prometheus.NewDesc(
			"celrix_latency_avg_microseconds",
			"Mean command latency.",
			nil, nil),
		latencyMin: prometheus.NewDesc(
			"celrix_latency_min_microseconds",
			"Minimum command latency.",
			nil, nil),
		latencyMax: prometheus.NewDesc(
			"celrix_latency_max_microseconds",
			"Maximum command latency.",
			nil, nil),
		keys: prometheus.NewDesc(
			"celrix_keys",
			"Entries in the KV store, including not-yet-reaped expired entries.",
			nil, nil),
		embeddings: prometheus.NewDesc(
			"celrix_embeddings",
			"Vectors in the embedding index.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.opsTotal
	ch <- e.opsByCommand
	ch <- e.connections
	ch <- e.latencyAvg
	ch <- e.latencyMin
	ch <- e.latencyMax
	ch <- e.keys
	ch <- e.embeddings
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(e.opsTotal, prometheus.CounterValue, float64(e.metrics.TotalOps()))
	for command, count := range e.metrics.OpsByCommand() {
		ch <- prometheus.MustNewConstMetric(e.opsByCommand, prometheus.CounterValue, float64(count), command)
	}
	ch <- prometheus.MustNewConstMetric(e.connections, prometheus.CounterValue, float64(e.metrics.Connections()))
	ch <- prometheus.MustNewConstMetric(e.latencyAvg, prometheus.GaugeValue, e.metrics.AvgLatencyUs())
	ch <- prometheus.MustNewConstMetric(e.latencyMin, prometheus.GaugeValue, float64(e.metrics.MinLatencyUs()))
	ch <- prometheus.MustNewConstMetric(e.latencyMax, prometheus.GaugeValue, float64(e.metrics.MaxLatencyUs()))
	ch <- prometheus.MustNewConstMetric(e.keys, prometheus.GaugeValue, float64(e.store.Len()))
	ch <- prometheus.MustNewConstMetric(e.embeddings, prometheus.GaugeValue, float64(e.index.Len()))
}
