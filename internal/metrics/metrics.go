// Package metrics exposes Prometheus counters/gauges for the handshake
// client, served over /metrics exactly as the teacher's StartMetricsServer
// did. Trimmed to connection-level concerns: no tx/block/inv metrics,
// since this repo never parses or relays those message types.
package metrics

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PeerConnectionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btc_peer_connection_attempts_total",
		Help: "Total number of handshake attempts started",
	})

	PeerHandshakeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btc_peer_handshake_failures_total",
		Help: "Total number of handshake failures, by error kind",
	}, []string{"kind"})

	PeersEstablished = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "btc_peers_established",
		Help: "Number of currently established peer connections",
	})

	HandshakeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "btc_handshake_duration_seconds",
		Help:    "Wall-clock duration of a handshake attempt, success or failure",
		Buckets: prometheus.DefBuckets,
	})

	DiscoveryCandidates = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "btc_discovery_candidates",
		Help: "Number of candidate peer addresses in the most recent discovery sweep",
	})

	DBErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btc_db_errors_total",
		Help: "Total number of peerstore database errors",
	}, []string{"operation"})
)

// SeedFromDB initializes the established-peers gauge from the peerstore's
// historical record so it doesn't reset to zero on restart.
func SeedFromDB(db *sql.DB) {
	var established float64
	row := db.QueryRow(`SELECT COUNT(*) FROM peers WHERE last_result = 'established'`)
	if err := row.Scan(&established); err != nil {
		log.Printf("failed to seed metrics from database: %v", err)
		return
	}
	PeersEstablished.Set(established)
}

// corsHandler wraps a handler with CORS headers
func corsHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartMetricsServer starts the Prometheus metrics HTTP server
func StartMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", corsHandler(promhttp.Handler()))
	go http.ListenAndServe(addr, mux)
}
