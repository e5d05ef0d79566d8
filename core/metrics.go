package core

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsSnapshot is a point-in-time read of Stats's counters, returned by
// Engine.Stats().
type StatsSnapshot struct {
	Errors        uint64
	Publishes     uint64
	Reconnects    uint64
	Evictions     uint64
	Heartbeats    uint64
	ActiveDevices uint64
}

// Stats holds the engine's Prometheus-backed counters: errors, publishes,
// reconnects, evictions and heartbeats observed during Loop(), plus the
// active-device gauge maintained by the slot table. The atomic counters
// are authoritative; the Prometheus collectors mirror them for the
// /metrics endpoint.
type Stats struct {
	errors     atomic.Uint64
	publishes  atomic.Uint64
	reconnects atomic.Uint64
	evictions  atomic.Uint64
	heartbeats atomic.Uint64
	active     atomic.Uint64

	registry *prometheus.Registry

	errorsMetric        prometheus.Counter
	publishesMetric     prometheus.Counter
	reconnectsMetric    prometheus.Counter
	evictionsMetric     prometheus.Counter
	heartbeatsMetric    prometheus.Counter
	activeDevicesMetric prometheus.GaugeFunc
}

func newStats() *Stats {
	s := &Stats{registry: prometheus.NewRegistry()}

	s.errorsMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sds_errors_total",
		Help: "Total number of errors observed by the engine.",
	})
	s.publishesMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sds_publishes_total",
		Help: "Total number of successful section publishes.",
	})
	s.reconnectsMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sds_reconnects_total",
		Help: "Total number of successful broker reconnects.",
	})
	s.evictionsMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sds_evictions_total",
		Help: "Total number of devices evicted from an owner slot table.",
	})
	s.heartbeatsMetric = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sds_heartbeats_total",
		Help: "Total number of liveness heartbeat publishes.",
	})
	s.activeDevicesMetric = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sds_active_devices",
		Help: "Current number of valid owner-slot entries across all tables.",
	}, func() float64 { return float64(s.active.Load()) })

	s.registry.MustRegister(
		s.errorsMetric,
		s.publishesMetric,
		s.reconnectsMetric,
		s.evictionsMetric,
		s.heartbeatsMetric,
		s.activeDevicesMetric,
	)
	return s
}

func (s *Stats) incErrors()     { s.errors.Add(1); s.errorsMetric.Inc() }
func (s *Stats) incPublishes()  { s.publishes.Add(1); s.publishesMetric.Inc() }
func (s *Stats) incReconnects() { s.reconnects.Add(1); s.reconnectsMetric.Inc() }
func (s *Stats) incEvictions()  { s.evictions.Add(1); s.evictionsMetric.Inc() }
func (s *Stats) incHeartbeats() { s.heartbeats.Add(1); s.heartbeatsMetric.Inc() }

func (s *Stats) setActiveDevices(n uint64) { s.active.Store(n) }

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Errors:        s.errors.Load(),
		Publishes:     s.publishes.Load(),
		Reconnects:    s.reconnects.Load(),
		Evictions:     s.evictions.Load(),
		Heartbeats:    s.heartbeats.Load(),
		ActiveDevices: s.active.Load(),
	}
}

// StartMetricsServer exposes the engine's Prometheus registry on
// addr + "/metrics". It returns the *http.Server so the caller controls
// its lifecycle with ShutdownMetricsServer.
func (e *Engine) StartMetricsServer(addr string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.stats.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Errorf("sds: metrics server: %v", err)
		}
	}()
	return srv, nil
}

// ShutdownMetricsServer gracefully stops a server returned by
// StartMetricsServer.
func (e *Engine) ShutdownMetricsServer(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
