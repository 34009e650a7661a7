package rpcclient

import (
	"time"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "tonlib"

// MetricsCallback counts requests and their timings per method.
type MetricsCallback struct {
	NoopCallback

	requests      *prometheus.CounterVec
	requestTimes  *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	cancelled     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	parseErrors   prometheus.Counter
}

// NewMetricsCallback creates MetricsCallback and registers its collectors
// with reg.
func NewMetricsCallback(reg prometheus.Registerer) (*MetricsCallback, error) {
	m := &MetricsCallback{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Help:      "Number of completed requests",
				Name:      "requests_total",
				Namespace: metricsNamespace,
			},
			[]string{"method", "status"},
		),
		requestTimes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Help:      "Request round trip time",
				Name:      "request_duration_seconds",
				Namespace: metricsNamespace,
			},
			[]string{"method"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Help:      "Number of requests waiting for reply",
				Name:      "requests_in_flight",
				Namespace: metricsNamespace,
			},
		),
		cancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Help:      "Number of replies received for cancelled requests",
				Name:      "cancelled_requests_total",
				Namespace: metricsNamespace,
			},
			[]string{"method"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Help:      "Number of received notifications",
				Name:      "notifications_total",
				Namespace: metricsNamespace,
			},
			[]string{"type"},
		),
		parseErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Help:      "Number of unexpected unsolicited messages",
				Name:      "parse_errors_total",
				Namespace: metricsNamespace,
			},
		),
	}
	for _, c := range []prometheus.Collector{m.requests, m.requestTimes, m.inFlight, m.cancelled, m.notifications, m.parseErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// OnInvoke implements the Callback interface.
func (m *MetricsCallback) OnInvoke(string, uint32, tl.Function) {
	m.inFlight.Inc()
}

// OnInvokeResult implements the Callback interface.
func (m *MetricsCallback) OnInvokeResult(_ string, _ uint32, method string, elapsed time.Duration, _ tl.Result, err error) {
	m.inFlight.Dec()
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.requests.WithLabelValues(method, status).Inc()
	m.requestTimes.WithLabelValues(method).Observe(elapsed.Seconds())
}

// OnCancelledInvoke implements the Callback interface.
func (m *MetricsCallback) OnCancelledInvoke(_ string, _ uint32, method string, _ time.Duration) {
	m.cancelled.WithLabelValues(method).Inc()
}

// OnNotification implements the Callback interface.
func (m *MetricsCallback) OnNotification(_ string, n tl.Notification) {
	m.notifications.WithLabelValues(n.Type()).Inc()
}

// OnResultParseError implements the Callback interface.
func (m *MetricsCallback) OnResultParseError(string, *string, tl.Result, error) {
	m.parseErrors.Inc()
}
