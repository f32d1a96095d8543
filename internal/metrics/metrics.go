// Package metrics exposes engine activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bulkdl/internal/models"
)

const namespace = "bulkdl"

// Metrics counts engine events on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	started       prometheus.Counter
	finished      prometheus.Counter
	failed        prometheus.Counter
	fileSizeBytes prometheus.Histogram
}

// New registers the collectors. incomplete is sampled on every scrape.
func New(incomplete func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_started_total",
			Help:      "Transfers that received a response.",
		}),
		finished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_finished_total",
			Help:      "Items downloaded completely.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_failed_total",
			Help:      "Items that ended in error.",
		}),
		fileSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "downloaded_file_size_bytes",
			Help:      "Size of finished files.",
			// 1KB to 1GB
			Buckets: prometheus.ExponentialBuckets(1024, 10, 7),
		}),
	}

	m.registry.MustRegister(
		m.started,
		m.finished,
		m.failed,
		m.fileSizeBytes,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downloads_incomplete",
			Help:      "Pending, downloading and paused items.",
		}, func() float64 { return float64(incomplete()) }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe is registered with Downloader.Subscribe.
func (m *Metrics) Observe(ev models.Event) {
	for _, item := range ev.Items {
		switch ev.Type {
		case models.EventDownload:
			m.started.Inc()
		case models.EventFinish:
			m.finished.Inc()
			m.fileSizeBytes.Observe(float64(item.FileSize))
		case models.EventError:
			m.failed.Inc()
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
