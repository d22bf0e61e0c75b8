// Package metrics exports engine activity from the event bus as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/ports"
)

var allStatuses = []domain.Status{
	domain.StatusIdle, domain.StatusPreroll, domain.StatusLoading, domain.StatusReady,
	domain.StatusPlaying, domain.StatusPaused, domain.StatusStopping, domain.StatusError,
}

// Collector keeps a private registry fed by a wildcard bus subscription.
type Collector struct {
	logger   *slog.Logger
	bus      ports.EventBus
	registry *prometheus.Registry
	subID    domain.SubscriptionID

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	status          *prometheus.GaugeVec
	degraded        *prometheus.CounterVec
	finished        *prometheus.CounterVec
	prerollFailures prometheus.Counter
	bundlesLoaded   prometheus.Counter
	position        prometheus.Gauge
}

// NewCollector registers the metrics and subscribes to every event on bus.
func NewCollector(logger *slog.Logger, bus ports.EventBus) *Collector {
	c := &Collector{
		logger:   logger,
		bus:      bus,
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mantra_commands_total",
			Help: "Engine commands executed, by command and result.",
		}, []string{"command", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mantra_command_duration_seconds",
			Help:    "Time spent executing engine commands.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"command"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mantra_session_status",
			Help: "1 for the current engine status, 0 otherwise.",
		}, []string{"status"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mantra_tracks_degraded_total",
			Help: "Layers that failed to start while the session kept playing.",
		}, []string{"role"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mantra_tracks_finished_total",
			Help: "Non-looping layers that reached their end.",
		}, []string{"role"}),
		prerollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mantra_preroll_failures_total",
			Help: "Pre-roll starts that failed.",
		}),
		bundlesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mantra_bundles_loaded_total",
			Help: "Bundles whose tracks were created.",
		}),
		position: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mantra_session_position_seconds",
			Help: "Position of the affirmations track.",
		}),
	}

	c.registry.MustRegister(c.commands, c.commandDuration, c.status, c.degraded, c.finished,
		c.prerollFailures, c.bundlesLoaded, c.position)
	c.setStatus(domain.StatusIdle)

	c.subID = bus.SubscribeAll(c.handle)
	return c
}

// Registry returns the registry holding the engine metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("metrics endpoint listening", slog.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Close stops receiving events.
func (c *Collector) Close() {
	c.bus.Unsubscribe(c.subID)
}

func (c *Collector) handle(event domain.Event) {
	switch e := event.(type) {
	case domain.StateChangedEvent:
		c.setStatus(e.Snapshot.Status)
		c.position.Set(e.Snapshot.Position().Seconds())
	case domain.CommandCompletedEvent:
		result := "ok"
		if e.Error != nil {
			result = "error"
		}
		c.commands.WithLabelValues(e.Command, result).Inc()
		c.commandDuration.WithLabelValues(e.Command).Observe(e.Elapsed.Seconds())
	case domain.TrackDegradedEvent:
		c.degraded.WithLabelValues(string(e.Role)).Inc()
	case domain.TrackFinishedEvent:
		c.finished.WithLabelValues(string(e.Role)).Inc()
	case domain.PrerollFailedEvent:
		c.prerollFailures.Inc()
	case domain.BundleLoadedEvent:
		c.bundlesLoaded.Inc()
	}
}

func (c *Collector) setStatus(current domain.Status) {
	for _, s := range allStatuses {
		value := 0.0
		if s == current {
			value = 1
		}
		c.status.WithLabelValues(string(s)).Set(value)
	}
}
