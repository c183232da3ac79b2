// Package metrics exposes watcher counters over Prometheus. The whole
// package is optional at runtime: a nil *Metrics is a valid no-op
// receiver, so components never nil-check.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Metrics struct {
	sweeps          *prometheus.CounterVec
	burstsFired     prometheus.Counter
	burstChecks     prometheus.Counter
	bookingAttempts *prometheus.CounterVec
	notifications   prometheus.Counter
	recordsTracked  prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sweeps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "classwatch_sweeps_total",
			Help: "Availability sweeps run, by trigger kind.",
		}, []string{"kind"}),
		burstsFired: f.NewCounter(prometheus.CounterOpts{
			Name: "classwatch_bursts_total",
			Help: "Booking-window bursts started.",
		}),
		burstChecks: f.NewCounter(prometheus.CounterOpts{
			Name: "classwatch_burst_checks_total",
			Help: "Individual polls run inside bursts.",
		}),
		bookingAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "classwatch_booking_attempts_total",
			Help: "Booking attempts, by outcome.",
		}, []string{"outcome"}),
		notifications: f.NewCounter(prometheus.CounterOpts{
			Name: "classwatch_notifications_total",
			Help: "Operator notifications dispatched.",
		}),
		recordsTracked: f.NewGauge(prometheus.GaugeOpts{
			Name: "classwatch_records_tracked",
			Help: "Class occurrences currently monitored.",
		}),
	}
}

func (m *Metrics) Sweep(kind string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(kind).Inc()
}

func (m *Metrics) BurstFired() {
	if m == nil {
		return
	}
	m.burstsFired.Inc()
}

func (m *Metrics) BurstCheck() {
	if m == nil {
		return
	}
	m.burstChecks.Inc()
}

func (m *Metrics) BookingAttempt(outcome string) {
	if m == nil {
		return
	}
	m.bookingAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotificationSent() {
	if m == nil {
		return
	}
	m.notifications.Inc()
}

func (m *Metrics) TrackedRecords(n int) {
	if m == nil {
		return
	}
	m.recordsTracked.Set(float64(n))
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
