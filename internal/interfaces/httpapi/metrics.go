package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"devdash/internal/application"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var sessionStates = []application.SessionState{
	application.StateDisconnected,
	application.StateConnecting,
	application.StateConnected,
	application.StateRefreshing,
}

// Metrics is the dashboard's Prometheus surface. It implements the session and
// scanner observer interfaces.
type Metrics struct {
	registry *prometheus.Registry

	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	sessionState    *prometheus.GaugeVec
	latestBlock     prometheus.Gauge
	accounts        prometheus.Gauge
	scans           prometheus.Counter
	scanDuration    prometheus.Histogram
	scanBlocks      prometheus.Gauge
	contracts       prometheus.Gauge
	requests        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devdash",
			Subsystem: "session",
			Name:      "refreshes_total",
			Help:      "Poll cycles by result",
		}, []string{"result"}),
		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "devdash",
			Subsystem: "session",
			Name:      "refresh_duration_seconds",
			Help:      "Poll cycle duration",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		sessionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "devdash",
			Subsystem: "session",
			Name:      "state",
			Help:      "1 for the current session state",
		}, []string{"state"}),
		latestBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "devdash",
			Subsystem: "node",
			Name:      "latest_block",
			Help:      "Head block number seen by the last poll",
		}),
		accounts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "devdash",
			Subsystem: "node",
			Name:      "accounts",
			Help:      "Accounts in the current snapshot",
		}),
		scans: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "devdash",
			Subsystem: "scanner",
			Name:      "scans_total",
			Help:      "Completed contract scans",
		}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "devdash",
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Contract scan duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		scanBlocks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "devdash",
			Subsystem: "scanner",
			Name:      "last_scan_blocks",
			Help:      "Blocks covered by the last scan",
		}),
		contracts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "devdash",
			Subsystem: "scanner",
			Name:      "contracts",
			Help:      "Contracts found by the last scan",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devdash",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route and status code",
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) OnRefresh(duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshes.WithLabelValues(result).Inc()
	m.refreshDuration.Observe(duration.Seconds())
}

func (m *Metrics) OnStateChange(state application.SessionState) {
	for _, s := range sessionStates {
		value := 0.0
		if s == state {
			value = 1
		}
		m.sessionState.WithLabelValues(string(s)).Set(value)
	}
}

func (m *Metrics) OnScan(duration time.Duration, blocks int, contracts int) {
	m.scans.Inc()
	m.scanDuration.Observe(duration.Seconds())
	m.scanBlocks.Set(float64(blocks))
	m.contracts.Set(float64(contracts))
}

func (m *Metrics) observeSnapshot(snap application.Snapshot) {
	if !snap.Connected() {
		m.latestBlock.Set(0)
		m.accounts.Set(0)
		return
	}
	m.latestBlock.Set(float64(snap.Network.LatestBlock))
	m.accounts.Set(float64(len(snap.Accounts)))
}

// Track keeps the node gauges in step with session snapshots until ctx is
// done or the session closes.
func (m *Metrics) Track(ctx context.Context, session *application.Session) {
	snapshots, cancel := session.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			m.observeSnapshot(snap)
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
