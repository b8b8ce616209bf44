package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Order/trade metrics
	OrdersPlacedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotmatch_orders_placed_total",
			Help: "Total number of orders placed by symbol and side",
		},
		[]string{"symbol", "side"},
	)

	OrdersRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotmatch_orders_rejected_total",
			Help: "Total number of orders rejected during apply, by reason",
		},
		[]string{"symbol", "reason"},
	)

	OrdersCancelledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotmatch_orders_cancelled_total",
			Help: "Total number of orders cancelled by symbol",
		},
		[]string{"symbol"},
	)

	TradesExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotmatch_trades_executed_total",
			Help: "Total number of trades executed by symbol",
		},
		[]string{"symbol"},
	)

	TradeVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotmatch_trade_volume_base",
			Help: "Cumulative traded base-asset quantity by symbol",
		},
		[]string{"symbol"},
	)

	// Book metrics
	BookDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spotmatch_book_depth",
			Help: "Current number of resting orders by symbol and side",
		},
		[]string{"symbol", "side"},
	)

	BookSpread = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spotmatch_book_spread",
			Help: "Current best-ask minus best-bid spread by symbol",
		},
		[]string{"symbol"},
	)

	SymbolsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spotmatch_symbols_active",
			Help: "Total number of active (non-delisted) symbols",
		},
	)

	// Raft metrics
	RaftIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spotmatch_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spotmatch_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLastIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spotmatch_raft_last_index",
			Help: "Last index present in the Raft log",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spotmatch_raft_applied_index",
			Help: "Last Raft log index applied to the state machine",
		},
	)

	RaftProposalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spotmatch_raft_proposal_duration_seconds",
			Help:    "Time from a client proposal being submitted to its commit being observed",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spotmatch_raft_apply_duration_seconds",
			Help:    "Time taken to apply one committed Raft log entry to the state machine",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftSnapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spotmatch_raft_snapshot_duration_seconds",
			Help:    "Time taken to build and persist one state machine snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Transport metrics
	PeerSendFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotmatch_peer_send_failures_total",
			Help: "Total number of failed raft message deliveries by destination peer",
		},
		[]string{"to"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotmatch_api_requests_total",
			Help: "Total number of client API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spotmatch_api_request_duration_seconds",
			Help:    "Client API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(OrdersPlacedTotal)
	prometheus.MustRegister(OrdersRejectedTotal)
	prometheus.MustRegister(OrdersCancelledTotal)
	prometheus.MustRegister(TradesExecutedTotal)
	prometheus.MustRegister(TradeVolume)
	prometheus.MustRegister(BookDepth)
	prometheus.MustRegister(BookSpread)
	prometheus.MustRegister(SymbolsActive)
	prometheus.MustRegister(RaftIsLeader)
	prometheus.MustRegister(RaftPeersTotal)
	prometheus.MustRegister(RaftLastIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RaftProposalDuration)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(RaftSnapshotDuration)
	prometheus.MustRegister(PeerSendFailuresTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
