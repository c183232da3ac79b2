package watcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/classwatch/internal/schedule"
	"github.com/example/classwatch/internal/tracker"
)

// armWindows schedules one burst per tracked record around its
// booking-open instant. A record outside the arming bounds (already
// open past the grace period, or further out than the look-ahead) is
// left for a later refresh to pick up; ClaimWindow guarantees at most
// one burst per record even when refreshes overlap.
func (w *Watcher) armWindows(ctx context.Context) {
	now := w.now()

	for _, rec := range w.registry.Records() {
		snap := w.registry.Snapshot(rec)
		if snap.Booked || snap.WindowScheduled {
			continue
		}

		open, err := schedule.OpenInstant(snap.Date, w.cfg.OpenLeadDays, w.cfg.OpenHour, w.cfg.Location)
		if err != nil {
			w.logger.Warn("cannot compute booking-open instant",
				zap.String("label", snap.Label), zap.Error(err))
			continue
		}

		until := open.Sub(now)
		if until < -w.windowGrace || until > w.windowLookAhead {
			continue
		}
		if !w.registry.ClaimWindow(rec) {
			continue
		}

		// Start slightly early so the first check lands right as the
		// window opens.
		delay := until - w.burstLead
		logger := w.logger.With(
			zap.String("label", snap.Label),
			zap.Time("opens_at", open))

		w.wg.Add(1)
		if delay <= 0 {
			logger.Info("booking window is open, bursting now")
			go func(rec *tracker.Record) {
				defer w.wg.Done()
				w.burst(ctx, rec)
			}(rec)
			continue
		}

		logger.Info("burst scheduled", zap.Duration("in", delay))
		go func(rec *tracker.Record, delay time.Duration) {
			defer w.wg.Done()
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			w.burst(ctx, rec)
		}(rec, delay)
	}
}

// burst runs the aggressive poll sequence for one record. It ends as
// soon as a booking attempt has been dispatched or the record is
// booked elsewhere; exhausting all checks without the class opening is
// a normal outcome and regular sweeps carry on afterwards.
func (w *Watcher) burst(ctx context.Context, rec *tracker.Record) {
	snap := w.registry.Snapshot(rec)
	if snap.Booked {
		return
	}

	w.metrics.BurstFired()
	logger := w.logger.With(zap.String("label", snap.Label), zap.String("date", snap.Date))
	logger.Info("burst started")

	for _, phase := range w.burstPhases {
		for i := 0; i < phase.checks; i++ {
			if ctx.Err() != nil {
				return
			}
			if w.registry.IsBooked(rec) {
				logger.Info("class booked, ending burst")
				return
			}

			w.metrics.BurstCheck()
			if done := w.burstCheck(ctx, rec, logger); done {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(phase.interval):
			}
		}
	}

	logger.Info("burst finished without booking, regular polling continues")
}

// burstCheck runs one poll inside a burst. It returns true when the
// burst should stop: an attempt was dispatched. Fetch errors do not
// stop the burst.
func (w *Watcher) burstCheck(ctx context.Context, rec *tracker.Record, logger *zap.Logger) bool {
	snap := w.registry.Snapshot(rec)

	classes, err := w.api.ListClasses(ctx, snap.Date)
	if err != nil {
		logger.Warn("burst fetch failed", zap.Error(err))
		return false
	}
	now := w.now()

	cls, ok := findByID(classes, snap.RemoteID)
	if snap.RemoteID == "" {
		if cls, ok = findByTime(classes, snap.TimeOfDay); ok {
			w.registry.Adopt(rec, cls, now)
		}
	}
	if !ok {
		logger.Debug("class not listed yet")
		return false
	}

	w.registry.Observe(rec, cls, now)

	if tracker.IsAvailable(cls) && tracker.BookingStateOf(cls, now) == tracker.BookingOpen {
		if w.registry.BeginAttempt(rec) {
			logger.Info("class opened during burst, attempting booking")
			w.attempt(ctx, cls, rec)
		}
		return true
	}

	logger.Debug("not bookable yet", zap.String("detail", tracker.DetailedStatus(cls, now)))
	return false
}
