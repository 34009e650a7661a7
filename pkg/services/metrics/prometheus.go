package metrics

import (
	"net/http"

	"github.com/nspcc-dev/tonlib-go/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsPath is the scrape endpoint.
const MetricsPath = "/metrics"

// NewPrometheusService creates a service exposing client metrics for
// scraping. Metrics are taken from g or from the default registry if it's
// nil. Handler errors are logged, the scrape gets whatever was gathered.
func NewPrometheusService(cfg config.BasicService, g prometheus.Gatherer, log *zap.Logger) *Service {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	opts := promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError}
	if log != nil {
		opts.ErrorLog = zap.NewStdLog(log.Named("prometheus"))
	}
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.HandlerFor(g, opts))
	return newHTTPService("Prometheus", cfg, mux, log)
}
