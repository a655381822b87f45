package services

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	downloadAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ccs",
		Name:      "download_attempts_total",
		Help:      "Release artifact download attempts by terminal outcome",
	}, []string{"outcome"})

	lifecycleOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ccs",
		Name:      "lifecycle_outcomes_total",
		Help:      "Proxy lifecycle decisions: spawn, join, reclaim_failed, blocked, version_restart",
	}, []string{"outcome"})

	chainLinksStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ccs",
		Name:      "chain_links_total",
		Help:      "Transformation links by name and whether they started",
	}, []string{"link", "result"})
)

// MetricsHandler exposes the process metrics on a gin route, mounted on
// the outermost chain link's side channel.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func recordDownload(outcome string, attempts int) {
	downloadAttempts.WithLabelValues(outcome).Add(float64(attempts))
}

func recordLifecycle(outcome string) {
	lifecycleOutcomes.WithLabelValues(outcome).Inc()
}

func recordLink(link, result string) {
	chainLinksStarted.WithLabelValues(link, result).Inc()
}
