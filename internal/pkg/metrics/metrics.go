package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FeedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pctrl_feed_events_total",
			Help: "Number of BGP update events consumed from the feed",
		},
		[]string{"type"},
	)

	FeedDecodeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pctrl_feed_decode_errors_total",
			Help: "Number of feed records that could not be decoded",
		},
	)

	ChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pctrl_changes_total",
			Help: "Number of route changes processed per peer",
		},
		[]string{"peer", "kind"},
	)

	StaleChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pctrl_stale_changes_total",
			Help: "Number of route changes discarded because the neighbor session was reset",
		},
		[]string{"peer"},
	)

	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pctrl_actions_total",
			Help: "Number of announce and withdraw commands emitted per peer",
		},
		[]string{"peer", "kind"},
	)

	NewFECsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pctrl_new_fecs_total",
			Help: "Number of new forwarding equivalence classes reported per peer",
		},
		[]string{"peer"},
	)

	MissingForwardingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pctrl_missing_forwarding_total",
			Help: "Number of changes skipped for lack of a forwarding entry",
		},
		[]string{"peer"},
	)

	DecideDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pctrl_decide_duration_seconds",
			Help:    "Time spent deciding and propagating a single route change",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"peer"},
	)

	CommandSendErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pctrl_command_send_errors_total",
			Help: "Number of commands that failed to reach the route server feed",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		FeedEventsTotal,
		FeedDecodeErrorsTotal,
		ChangesTotal,
		StaleChangesTotal,
		ActionsTotal,
		NewFECsTotal,
		MissingForwardingTotal,
		DecideDuration,
		CommandSendErrorsTotal,
	)
}

// PeerRibStats is a point-in-time snapshot of one peer's RIB state.
type PeerRibStats struct {
	Peer    string
	Tables  map[string]int
	Locks   int
	Pending int
	Commits uint64
	Resets  uint64
}

// StatsProvider is implemented by the server so the collector can pull
// per-peer state without holding references into it.
type StatsProvider interface {
	RibStats() []PeerRibStats
}

type pctrlCollector struct {
	provider StatsProvider
}

var (
	peerLabels  = []string{"peer"}
	tableLabels = []string{"peer", "table"}

	ribRoutesDesc     = prometheus.NewDesc("pctrl_rib_routes", "Number of routes held in a peer RIB stage", tableLabels, nil)
	ribPendingDesc    = prometheus.NewDesc("pctrl_rib_pending_ops", "Number of staged RIB operations not yet committed", peerLabels, nil)
	ribCommitsDesc    = prometheus.NewDesc("pctrl_rib_commits_total", "Number of RIB commits applied", peerLabels, nil)
	prefixLocksDesc   = prometheus.NewDesc("pctrl_prefix_locks", "Number of per-prefix locks allocated", peerLabels, nil)
	sessionResetsDesc = prometheus.NewDesc("pctrl_session_resets_total", "Number of neighbor session resets observed", peerLabels, nil)
)

func NewPctrlCollector(provider StatsProvider) prometheus.Collector {
	return &pctrlCollector{provider: provider}
}

func (c *pctrlCollector) Describe(out chan<- *prometheus.Desc) {
	out <- ribRoutesDesc
	out <- ribPendingDesc
	out <- ribCommitsDesc
	out <- prefixLocksDesc
	out <- sessionResetsDesc
}

func (c *pctrlCollector) Collect(out chan<- prometheus.Metric) {
	for _, s := range c.provider.RibStats() {
		for name, size := range s.Tables {
			out <- prometheus.MustNewConstMetric(ribRoutesDesc, prometheus.GaugeValue, float64(size), s.Peer, name)
		}
		out <- prometheus.MustNewConstMetric(ribPendingDesc, prometheus.GaugeValue, float64(s.Pending), s.Peer)
		out <- prometheus.MustNewConstMetric(ribCommitsDesc, prometheus.CounterValue, float64(s.Commits), s.Peer)
		out <- prometheus.MustNewConstMetric(prefixLocksDesc, prometheus.GaugeValue, float64(s.Locks), s.Peer)
		out <- prometheus.MustNewConstMetric(sessionResetsDesc, prometheus.CounterValue, float64(s.Resets), s.Peer)
	}
}
