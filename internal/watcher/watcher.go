// Package watcher is the monitoring engine: it sweeps the remote
// class listing on a fixed cadence, tracks per-class state
// transitions, arms high-frequency polling bursts around each class's
// booking-open instant, and hands bookable classes to the booking
// orchestrator exactly once per availability episode.
package watcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/classwatch/internal/booking"
	"github.com/example/classwatch/internal/mariana"
	"github.com/example/classwatch/internal/metrics"
	"github.com/example/classwatch/internal/schedule"
	"github.com/example/classwatch/internal/tracker"
)

// ClassLister is the slice of the booking API the sweeps need.
type ClassLister interface {
	ListClasses(ctx context.Context, date string) ([]mariana.Class, error)
}

// Attempter submits one booking attempt for a class.
type Attempter interface {
	Attempt(ctx context.Context, cls mariana.Class, rec *tracker.Record) (booking.Outcome, error)
}

type Config struct {
	PollInterval time.Duration
	// RefreshHours gates the schedule refresh: it runs on the first
	// poll tick of any hour divisible by this value.
	RefreshHours int
	Entries      []schedule.Entry

	// Booking-window computation: classes open OpenLeadDays ahead at
	// OpenHour local time in Location.
	OpenLeadDays int
	OpenHour     int
	Location     *time.Location
}

type Watcher struct {
	cfg      Config
	api      ClassLister
	booker   Attempter
	registry *tracker.Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics

	now func() time.Time
	wg  sync.WaitGroup

	// Burst protocol knobs, fixed in production and shortened in
	// tests.
	burstPhases     []burstPhase
	burstLead       time.Duration
	windowGrace     time.Duration
	windowLookAhead time.Duration
}

type burstPhase struct {
	checks   int
	interval time.Duration
}

func New(cfg Config, api ClassLister, booker Attempter, registry *tracker.Registry, logger *zap.Logger, m *metrics.Metrics) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RefreshHours < 1 {
		cfg.RefreshHours = 6
	}
	return &Watcher{
		cfg:      cfg,
		api:      api,
		booker:   booker,
		registry: registry,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		// 15 checks 2s apart, then 6 checks 5s apart: about a
		// minute of coverage from just before the window opens.
		burstPhases: []burstPhase{
			{checks: 15, interval: 2 * time.Second},
			{checks: 6, interval: 5 * time.Second},
		},
		burstLead:       2 * time.Second,
		windowGrace:     time.Minute,
		windowLookAhead: 8 * 24 * time.Hour,
	}
}

// Run drives the watcher until ctx is cancelled, then waits for any
// in-flight bursts to finish before returning.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("starting class availability monitor",
		zap.Int("schedule_slots", len(w.cfg.Entries)),
		zap.Duration("poll_interval", w.cfg.PollInterval))

	w.refresh(ctx)
	w.sweep(ctx, "initial")
	w.armWindows(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	hourly := time.NewTimer(w.untilNextHour())
	defer hourly.Stop()

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx, "regular")
			if w.refreshDue() {
				w.refresh(ctx)
				w.armWindows(ctx)
			}
		case <-hourly.C:
			w.sweep(ctx, "hourly")
			hourly.Reset(w.untilNextHour())
		}
	}
}

// refresh re-projects the weekly schedule onto calendar dates, merges
// any newly reachable slots into the registry and prunes records whose
// date has passed.
func (w *Watcher) refresh(ctx context.Context) {
	now := w.now().In(w.cfg.Location)

	added := w.registry.Merge(schedule.Project(w.cfg.Entries, now))
	for _, r := range added {
		w.logger.Info("tracking class", zap.String("label", r.Label), zap.String("date", r.Date))
	}

	for _, r := range w.registry.Prune(now.Format("2006-01-02")) {
		w.logger.Info("removed past class", zap.String("label", r.Label), zap.String("date", r.Date))
	}

	w.metrics.TrackedRecords(w.registry.Len())
}

// refreshDue gates the schedule refresh to the first poll tick after
// an hour divisible by the refresh cadence.
func (w *Watcher) refreshDue() bool {
	within := int(w.cfg.PollInterval / time.Minute)
	if within < 1 {
		within = 1
	}
	now := w.now().In(w.cfg.Location)
	return now.Hour()%w.cfg.RefreshHours == 0 && now.Minute() < within
}

func (w *Watcher) untilNextHour() time.Duration {
	now := w.now()
	next := now.Truncate(time.Hour).Add(time.Hour)
	return next.Sub(now)
}

// sweep checks every non-booked record against the remote listing.
// Fetch failures skip the record; the next sweep retries naturally.
func (w *Watcher) sweep(ctx context.Context, kind string) {
	w.metrics.Sweep(kind)
	logger := w.logger.With(zap.String("sweep", kind))

	for _, rec := range w.registry.Records() {
		if ctx.Err() != nil {
			return
		}
		snap := w.registry.Snapshot(rec)
		if snap.Booked {
			continue
		}

		classes, err := w.api.ListClasses(ctx, snap.Date)
		if err != nil {
			logger.Warn("class list fetch failed",
				zap.String("date", snap.Date), zap.Error(err))
			continue
		}
		now := w.now()

		if snap.RemoteID == "" {
			cls, ok := findByTime(classes, snap.TimeOfDay)
			if !ok {
				logger.Debug("class not listed yet", zap.String("label", snap.Label))
				continue
			}
			w.registry.Adopt(rec, cls, now)
			logger.Info("class found",
				zap.String("label", snap.Label),
				zap.String("class_id", cls.ID),
				zap.String("status", tracker.DetailedStatus(cls, now)))

			if tracker.IsAvailable(cls) && tracker.BookingStateOf(cls, now) == tracker.BookingOpen && w.registry.BeginAttempt(rec) {
				w.attempt(ctx, cls, rec)
			}
			continue
		}

		cls, ok := findByID(classes, snap.RemoteID)
		if !ok {
			// The class may reappear later; keep the id but re-arm
			// attempt eligibility.
			logger.Info("class no longer listed",
				zap.String("label", snap.Label),
				zap.String("class_id", snap.RemoteID))
			w.registry.ResetNotification(rec)
			continue
		}

		becameAvailable, becameBookable := w.registry.Observe(rec, cls, now)
		available := tracker.IsAvailable(cls)
		open := tracker.BookingStateOf(cls, now) == tracker.BookingOpen

		switch {
		case (becameAvailable || becameBookable) && available && open:
			if w.registry.BeginAttempt(rec) {
				logger.Info("class became bookable",
					zap.String("label", snap.Label),
					zap.Bool("became_available", becameAvailable),
					zap.Bool("became_bookable", becameBookable))
				w.attempt(ctx, cls, rec)
			}
		case !available || !open:
			w.registry.ResetNotification(rec)
		}

		logger.Debug("status",
			zap.String("label", snap.Label),
			zap.String("detail", tracker.DetailedStatus(cls, now)))
	}
}

func (w *Watcher) attempt(ctx context.Context, cls mariana.Class, rec *tracker.Record) {
	out, err := w.booker.Attempt(ctx, cls, rec)
	switch {
	case err != nil:
		kind := string(booking.KindOf(err))
		if kind == "" {
			kind = "error"
		}
		w.metrics.BookingAttempt(kind)
	case out.AlreadyReserved:
		w.metrics.BookingAttempt("already_reserved")
	default:
		w.metrics.BookingAttempt("booked")
	}
}

func findByTime(classes []mariana.Class, timeOfDay string) (mariana.Class, bool) {
	// First match wins; the remote listing is not expected to carry
	// two classes at the same start time for one location.
	for _, c := range classes {
		if c.StartTime == timeOfDay {
			return c, true
		}
	}
	return mariana.Class{}, false
}

func findByID(classes []mariana.Class, id string) (mariana.Class, bool) {
	for _, c := range classes {
		if c.ID == id {
			return c, true
		}
	}
	return mariana.Class{}, false
}
