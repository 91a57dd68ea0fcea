package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sma/internal/logging"
)

// Serve exposes a registry on addr under /metrics in the Prometheus
// text format. It returns the server so the caller can shut it down;
// serving errors other than a clean shutdown are logged.
func Serve(addr string, reg *prometheus.Registry, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("metrics server failed", logging.Fields{"addr": addr, "error": err.Error()})
			}
		}
	}()
	return server
}
