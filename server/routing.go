package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MonitoringPrefix is where the monitoring API is mounted
const MonitoringPrefix = "/api/v1/monitoring"

// Handler builds the routing table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.HandleHealth)
	if s.deps.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc(MonitoringPrefix+"/health_check", s.monitoring(s.HandleHealthCheck, true))
	mux.HandleFunc(MonitoringPrefix+"/status", s.monitoring(s.HandleStatus, true))
	mux.HandleFunc(MonitoringPrefix+"/token", s.monitoring(s.HandleToken, false))
	mux.HandleFunc(MonitoringPrefix+"/restart_failed_jobs", s.monitoring(s.HandleRestartFailedJobs, true))
	mux.HandleFunc(MonitoringPrefix+"/amount_check", s.monitoring(s.HandleAmountCheck, true))

	return s.logRequests(mux)
}

// monitoring wraps a monitoring handler with rate limiting and auth.
// allowToken says whether the monitoring token alone lets a caller in.
func (s *Server) monitoring(next http.HandlerFunc, allowToken bool) http.HandlerFunc {
	return s.rateLimit(s.requireAuth(next, allowToken))
}
