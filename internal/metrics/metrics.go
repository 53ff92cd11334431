// Package metrics exposes per-device Prometheus collectors for push
// counts, error counts, and frametime, grounded on the prometheus
// client usage in the xg2g reference repo.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DeviceCollector wires device-handle push outcomes into Prometheus
// metrics. A single instance is shared across all device handles.
type DeviceCollector struct {
	pushes    *prometheus.CounterVec
	errors    *prometheus.CounterVec
	frametime *prometheus.HistogramVec
}

// NewDeviceCollector builds and registers the device metric family on reg.
func NewDeviceCollector(reg prometheus.Registerer) *DeviceCollector {
	dc := &DeviceCollector{
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixoo",
			Subsystem: "device",
			Name:      "pushes_total",
			Help:      "Total frames pushed to the device driver.",
		}, []string{"device_id"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixoo",
			Subsystem: "device",
			Name:      "push_errors_total",
			Help:      "Total failed pushes to the device driver.",
		}, []string{"device_id"}),
		frametime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pixoo",
			Subsystem: "device",
			Name:      "frametime_seconds",
			Help:      "Wall-clock time spent in a driver Push call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"device_id"}),
	}
	reg.MustRegister(dc.pushes, dc.errors, dc.frametime)
	return dc
}

// Observe records one push outcome for deviceID: always counts the
// push and its frametime, and counts an error when failed is true.
func (dc *DeviceCollector) Observe(deviceID string, failed bool, elapsed time.Duration) {
	dc.pushes.WithLabelValues(deviceID).Inc()
	if failed {
		dc.errors.WithLabelValues(deviceID).Inc()
	}
	dc.frametime.WithLabelValues(deviceID).Observe(elapsed.Seconds())
}

// ObserveError increments the error counter for deviceID explicitly.
func (dc *DeviceCollector) ObserveError(deviceID string) {
	dc.errors.WithLabelValues(deviceID).Inc()
}
