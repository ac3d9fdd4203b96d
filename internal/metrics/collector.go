// Package metrics exposes Prometheus metrics for the hotbackup daemon.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veymont/hotbackup/internal/hotbackup"
)

// Collector exports the active backup attempt's progress. Values come
// straight from the registry snapshot at scrape time; when no backup is
// running only hotbackup_running is reported, as 0.
type Collector struct {
	registry *hotbackup.Registry

	running    *prometheus.Desc
	percent    *prometheus.Desc
	bytesDone  *prometheus.Desc
	filesDone  *prometheus.Desc
	filesTotal *prometheus.Desc
}

// NewCollector creates a collector over the manager registry.
func NewCollector(registry *hotbackup.Registry) *Collector {
	return &Collector{
		registry: registry,
		running: prometheus.NewDesc("hotbackup_running",
			"Whether a hot backup is currently running.", nil, nil),
		percent: prometheus.NewDesc("hotbackup_progress_percent",
			"Completion percentage of the running backup.", nil, nil),
		bytesDone: prometheus.NewDesc("hotbackup_bytes_done",
			"Total bytes copied by the running backup.", nil, nil),
		filesDone: prometheus.NewDesc("hotbackup_files_done",
			"Files fully copied by the running backup.", nil, nil),
		filesTotal: prometheus.NewDesc("hotbackup_files_total",
			"Files known to the running backup.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.running
	ch <- c.percent
	ch <- c.bytesDone
	ch <- c.filesDone
	ch <- c.filesTotal
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	doc, err := c.registry.Status()
	if errors.Is(err, hotbackup.ErrNoBackupRunning) {
		ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, 0)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.percent, prometheus.GaugeValue, doc.Percent)
	ch <- prometheus.MustNewConstMetric(c.bytesDone, prometheus.GaugeValue, float64(doc.BytesDone))
	ch <- prometheus.MustNewConstMetric(c.filesDone, prometheus.GaugeValue, float64(doc.Files.Done))
	ch <- prometheus.MustNewConstMetric(c.filesTotal, prometheus.GaugeValue, float64(doc.Files.Total))
}

// Handler returns an HTTP handler serving the daemon's metrics, including
// the standard Go runtime and process collectors.
func Handler(registry *hotbackup.Registry) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(registry),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
