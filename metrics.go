package aloop

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	bytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName("aloop", "cable", "bytes_total"),
		"Bytes moved by the position updates of the cable",
		[]string{"device"}, nil,
	)

	periodsDesc = prometheus.NewDesc(
		prometheus.BuildFQName("aloop", "stream", "periods_elapsed_total"),
		"Period boundaries crossed while the stream was running",
		[]string{"device", "direction"}, nil,
	)

	xrunsDesc = prometheus.NewDesc(
		prometheus.BuildFQName("aloop", "stream", "xruns_total"),
		"Underruns (playback) or overruns (capture) seen by the application pointer",
		[]string{"device", "direction"}, nil,
	)

	runningDesc = prometheus.NewDesc(
		prometheus.BuildFQName("aloop", "stream", "running"),
		"1 while the stream is running",
		[]string{"device", "direction"}, nil,
	)
)

// Collector exposes a device's counters to Prometheus.
type Collector struct {
	devices []*Device
}

// NewCollector returns a collector for the given devices. Device names should be unique.
func NewCollector(devices ...*Device) *Collector {
	return &Collector{devices: devices}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- bytesDesc
	ch <- periodsDesc
	ch <- xrunsDesc
	ch <- runningDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, d := range c.devices {
		bytes, periods, xruns := d.Stats()

		d.mu.Lock()
		running := d.running
		d.mu.Unlock()

		ch <- prometheus.MustNewConstMetric(bytesDesc, prometheus.CounterValue, float64(bytes), d.name)

		for _, dir := range [...]Direction{SNDRV_PCM_STREAM_PLAYBACK, SNDRV_PCM_STREAM_CAPTURE} {
			var up float64
			if running&dir.bit() != 0 {
				up = 1
			}

			ch <- prometheus.MustNewConstMetric(periodsDesc, prometheus.CounterValue, float64(periods[dir]), d.name, dir.String())
			ch <- prometheus.MustNewConstMetric(xrunsDesc, prometheus.CounterValue, float64(xruns[dir]), d.name, dir.String())
			ch <- prometheus.MustNewConstMetric(runningDesc, prometheus.GaugeValue, up, d.name, dir.String())
		}
	}
}
