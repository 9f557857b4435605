package tracking

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts the moving parts of the location pipeline. A private
// registry keeps the scrape surface limited to what this package exports.
type Metrics struct {
	reg *prometheus.Registry

	CapturesTotal      prometheus.Counter
	CaptureFailures    prometheus.Counter
	PublishesTotal     prometheus.Counter
	PublishFailures    prometheus.Counter
	NotificationsTotal prometheus.Counter
	RefreshesTotal     prometheus.Counter
}

func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	captures := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracking_captures_total"})
	captureFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracking_capture_failures_total"})
	publishes := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracking_publishes_total"})
	publishFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracking_publish_failures_total"})
	notifications := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracking_notifications_total"})
	refreshes := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracking_dashboard_refreshes_total"})

	r.MustRegister(captures, captureFailures, publishes, publishFailures, notifications, refreshes)
	return &Metrics{
		reg:                r,
		CapturesTotal:      captures,
		CaptureFailures:    captureFailures,
		PublishesTotal:     publishes,
		PublishFailures:    publishFailures,
		NotificationsTotal: notifications,
		RefreshesTotal:     refreshes,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
