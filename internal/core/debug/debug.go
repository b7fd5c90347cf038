package debug

import (
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/session"
)

const namespace = "gameserver"

// Metrics holds the process counters. A nil *Metrics discards every update.
type Metrics struct {
	Registry *prometheus.Registry

	Admissions        *prometheus.CounterVec
	ActiveConnections prometheus.Gauge
	SessionsStarted   prometheus.Counter
	SessionsEnded     prometheus.Counter
	ShutdownFailures  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Admission decisions by result.",
		}, []string{"result"}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admission_connections",
			Help:      "Connections currently being handled by the admission listener.",
		}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "game_sessions_started_total",
			Help:      "Game sessions activated on this process.",
		}),
		SessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "game_sessions_ended_total",
			Help:      "Game sessions that finished the shutdown sequence.",
		}),
		ShutdownFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shutdown_failures_total",
			Help:      "Shutdown sequences in which a GameLift call failed.",
		}),
	}
	m.Registry.MustRegister(
		m.Admissions,
		m.ActiveConnections,
		m.SessionsStarted,
		m.SessionsEnded,
		m.ShutdownFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Admission(result string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(result).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.ActiveConnections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.ActiveConnections.Dec()
	}
}

// SessionStarted and SessionEnded let Metrics observe the session host.
func (m *Metrics) SessionStarted(session.Snapshot) error {
	if m != nil {
		m.SessionsStarted.Inc()
	}
	return nil
}

func (m *Metrics) SessionEnded(_ session.Snapshot, result session.ShutdownResult) error {
	if m == nil {
		return nil
	}
	m.SessionsEnded.Inc()
	if result.Err() != nil {
		m.ShutdownFailures.Inc()
	}
	return nil
}

// Handler serves pprof under /debug/pprof/ and the metrics registry under /metrics.
func Handler(m *Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	if m != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// StartUtilities spins off the services associated with debug mode. The pprof
// server can be accessed via localhost to get runtime information about the
// process. See https://golang.org/pkg/net/http/pprof/
func StartUtilities(logger *logrus.Logger, pprofPort int, m *Metrics) *http.Server {
	listenerAddr := fmt.Sprintf("localhost:%d", pprofPort)
	logger.Infof("[DEBUG] starting pprof and metrics server on %s", listenerAddr)

	srv := &http.Server{Addr: listenerAddr, Handler: Handler(m)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[DEBUG] error starting pprof server: %s", err)
		}
	}()
	return srv
}
