package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metromap_upstream_requests_total",
		Help: "Outbound source requests by layer and outcome",
	}, []string{"layer", "outcome"})
	UpstreamDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "metromap_upstream_duration_ms",
		Help:    "Outbound source request duration in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	}, []string{"layer"})
	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metromap_cache_lookups_total",
		Help: "Cache lookups by layer and result (hit, fetched, stale, unavailable, failed)",
	}, []string{"layer", "result"})
	LiveUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metromap_live_updates_total",
		Help: "Live layer updates published",
	}, []string{"layer"})
	WebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "metromap_websocket_clients",
		Help: "Connected live layer websocket clients",
	})
)

func init() {
	prometheus.MustRegister(UpstreamRequestsTotal)
	prometheus.MustRegister(UpstreamDurationMs)
	prometheus.MustRegister(CacheLookupsTotal)
	prometheus.MustRegister(LiveUpdatesTotal)
	prometheus.MustRegister(WebSocketClients)
}

// Handler exposes the registered metrics for scraping
func Handler() http.Handler { return promhttp.Handler() }
