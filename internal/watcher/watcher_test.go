package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/classwatch/internal/booking"
	"github.com/example/classwatch/internal/mariana"
	"github.com/example/classwatch/internal/schedule"
	"github.com/example/classwatch/internal/tracker"
)

type fakeLister struct {
	mu       sync.Mutex
	calls    int
	errFirst bool
	err      error
	// byCall overrides classes per call; the last element repeats.
	byCall  [][]mariana.Class
	classes []mariana.Class
}

func (f *fakeLister) ListClasses(_ context.Context, _ string) ([]mariana.Class, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.errFirst && f.calls == 1 {
		return nil, errors.New("listing: connection reset")
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.byCall) > 0 {
		i := f.calls - 1
		if i >= len(f.byCall) {
			i = len(f.byCall) - 1
		}
		return f.byCall[i], nil
	}
	return f.classes, nil
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBooker struct {
	mu         sync.Mutex
	attempts   []string
	outcome    booking.Outcome
	err        error
	registry   *tracker.Registry
	markBooked bool
}

func (f *fakeBooker) Attempt(_ context.Context, cls mariana.Class, rec *tracker.Record) (booking.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, cls.ID)
	if f.markBooked {
		f.registry.MarkBooked(rec)
	}
	return f.outcome, f.err
}

func (f *fakeBooker) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

func newTestWatcher(lister ClassLister, booker Attempter, reg *tracker.Registry, now time.Time) *Watcher {
	w := New(Config{
		PollInterval: 10 * time.Minute,
		OpenLeadDays: 7,
		OpenHour:     12,
		Location:     time.UTC,
	}, lister, booker, reg, zap.NewNop(), nil)
	w.now = func() time.Time { return now }
	w.burstPhases = []burstPhase{{checks: 3, interval: 0}}
	w.burstLead = 0
	return w
}

func boolPtr(b bool) *bool { return &b }

func openClass(id string) mariana.Class {
	return mariana.Class{ID: id, StartTime: "17:30:00", Status: "Available", AvailableSpotCount: 3}
}

func waitlistClass(id string) mariana.Class {
	return mariana.Class{ID: id, StartTime: "17:30:00", Status: mariana.StatusWaitlistOnly}
}

func notOpenClass(id string) mariana.Class {
	return mariana.Class{ID: id, StartTime: "17:30:00", Status: "Available", AvailableSpotCount: 3, IsBookable: boolPtr(false)}
}

func seedRecord(reg *tracker.Registry, date string) *tracker.Record {
	reg.Merge([]schedule.Occurrence{{Date: date, TimeOfDay: "17:30:00", Label: "Monday 5:30pm"}})
	return reg.Records()[0]
}

func TestSweep_AdoptsAndAttemptsOnce(t *testing.T) {
	reg := tracker.NewRegistry()
	rec := seedRecord(reg, "2024-06-10")
	lister := &fakeLister{classes: []mariana.Class{openClass("c1")}}
	booker := &fakeBooker{}
	w := newTestWatcher(lister, booker, reg, time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC))

	w.sweep(context.Background(), "regular")
	assert.Equal(t, "c1", reg.Snapshot(rec).RemoteID)
	assert.Equal(t, 1, booker.attemptCount())

	// Same availability episode: no second attempt.
	w.sweep(context.Background(), "regular")
	assert.Equal(t, 1, booker.attemptCount())
}

func TestSweep_WaitlistThenAvailable(t *testing.T) {
	reg := tracker.NewRegistry()
	rec := seedRecord(reg, "2024-06-10")
	lister := &fakeLister{byCall: [][]mariana.Class{
		{waitlistClass("c1")},
		{waitlistClass("c1")},
		{openClass("c1")},
	}}
	booker := &fakeBooker{}
	w := newTestWatcher(lister, booker, reg, time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC))

	w.sweep(context.Background(), "regular")
	assert.Equal(t, 0, booker.attemptCount())
	assert.False(t, reg.Snapshot(rec).NotificationSent)

	w.sweep(context.Background(), "regular")
	assert.Equal(t, 0, booker.attemptCount())

	// Waitlist cleared: one attempt for the new episode.
	w.sweep(context.Background(), "regular")
	assert.Equal(t, 1, booker.attemptCount())
}

func TestSweep_ReattemptsAfterReset(t *testing.T) {
	reg := tracker.NewRegistry()
	seedRecord(reg, "2024-06-10")
	lister := &fakeLister{byCall: [][]mariana.Class{
		{openClass("c1")},     // adopt + attempt
		{waitlistClass("c1")}, // episode over, eligibility resets
		{openClass("c1")},     // fresh episode, attempt again
	}}
	booker := &fakeBooker{}
	w := newTestWatcher(lister, booker, reg, time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC))

	w.sweep(context.Background(), "regular")
	w.sweep(context.Background(), "regular")
	w.sweep(context.Background(), "regular")
	assert.Equal(t, 2, booker.attemptCount())
}

func TestSweep_NotOpenNoAttempt(t *testing.T) {
	reg := tracker.NewRegistry()
	seedRecord(reg, "2024-06-10")
	lister := &fakeLister{classes: []mariana.Class{notOpenClass("c1")}}
	booker := &fakeBooker{}
	w := newTestWatcher(lister, booker, reg, time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC))

	w.sweep(context.Background(), "regular")
	assert.Equal(t, 0, booker.attemptCount())
}

func TestSweep_ClassDisappearsKeepsID(t *testing.T) {
	reg := tracker.NewRegistry()
	rec := seedRecord(reg, "2024-06-10")
	lister := &fakeLister{byCall: [][]mariana.Class{
		{waitlistClass("c1")},
		{},
	}}
	w := newTestWatcher(lister, &fakeBooker{}, reg, time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC))

	w.sweep(context.Background(), "regular")
	w.sweep(context.Background(), "regular")

	snap := reg.Snapshot(rec)
	assert.Equal(t, "c1", snap.RemoteID)
	assert.False(t, snap.NotificationSent)
}

func TestSweep_FetchErrorSkipsRecord(t *testing.T) {
	reg := tracker.NewRegistry()
	seedRecord(reg, "2024-06-10")
	lister := &fakeLister{err: errors.New("boom")}
	booker := &fakeBooker{}
	w := newTestWatcher(lister, booker, reg, time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC))

	w.sweep(context.Background(), "regular")
	assert.Equal(t, 0, booker.attemptCount())
}

func TestSweep_SkipsBookedRecords(t *testing.T) {
	reg := tracker.NewRegistry()
	rec := seedRecord(reg, "2024-06-10")
	reg.MarkBooked(rec)
	lister := &fakeLister{classes: []mariana.Class{openClass("c1")}}
	w := newTestWatcher(lister, &fakeBooker{}, reg, time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC))

	w.sweep(context.Background(), "regular")
	assert.Equal(t, 0, lister.callCount())
}

func TestRefresh_MergesAndPrunes(t *testing.T) {
	reg := tracker.NewRegistry()
	seedRecord(reg, "2024-05-01") // stale, should be pruned

	now := time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC) // Tuesday
	lister := &fakeLister{}
	w := newTestWatcher(lister, &fakeBooker{}, reg, now)
	w.cfg.Entries = []schedule.Entry{
		{Day: 1, Time: "17:30:00", Label: "Monday 5:30pm"},
		{Day: 6, Time: "07:30:00", Label: "Saturday 7:30am"},
	}

	w.refresh(context.Background())

	require.Equal(t, 2, reg.Len())
	var dates []string
	for _, r := range reg.Records() {
		dates = append(dates, reg.Snapshot(r).Date)
	}
	assert.Contains(t, dates, "2024-06-10") // next Monday
	assert.Contains(t, dates, "2024-06-08") // upcoming Saturday
	assert.NotContains(t, dates, "2024-05-01")

	// Idempotent: re-running adds nothing.
	w.refresh(context.Background())
	assert.Equal(t, 2, reg.Len())
}

func TestRefreshDue(t *testing.T) {
	w := newTestWatcher(&fakeLister{}, &fakeBooker{}, tracker.NewRegistry(), time.Time{})

	w.now = func() time.Time { return time.Date(2024, 6, 4, 12, 3, 0, 0, time.UTC) }
	assert.True(t, w.refreshDue())

	w.now = func() time.Time { return time.Date(2024, 6, 4, 12, 45, 0, 0, time.UTC) }
	assert.False(t, w.refreshDue())

	w.now = func() time.Time { return time.Date(2024, 6, 4, 13, 3, 0, 0, time.UTC) }
	assert.False(t, w.refreshDue())
}

func TestBurst_AttemptsWhenClassOpens(t *testing.T) {
	reg := tracker.NewRegistry()
	rec := seedRecord(reg, "2024-06-10")
	lister := &fakeLister{byCall: [][]mariana.Class{
		{notOpenClass("c1")},
		{openClass("c1")},
	}}
	booker := &fakeBooker{registry: reg, markBooked: true}
	w := newTestWatcher(lister, booker, reg, time.Date(2024, 6, 3, 12, 0, 1, 0, time.UTC))

	w.burst(context.Background(), rec)

	assert.Equal(t, 1, booker.attemptCount())
	// Burst stops on dispatch: two checks, not three.
	assert.Equal(t, 2, lister.callCount())
	assert.True(t, reg.IsBooked(rec))
}

func TestBurst_AdoptsUnseenClass(t *testing.T) {
	reg := tracker.NewRegistry()
	rec := seedRecord(reg, "2024-06-10")
	lister := &fakeLister{classes: []mariana.Class{openClass("c9")}}
	booker := &fakeBooker{}
	w := newTestWatcher(lister, booker, reg, time.Date(2024, 6, 3, 12, 0, 1, 0, time.UTC))

	w.burst(context.Background(), rec)

	assert.Equal(t, "c9", reg.Snapshot(rec).RemoteID)
	assert.Equal(t, 1, booker.attemptCount())
}

func TestBurst_SkipsBookedRecord(t *testing.T) {
	reg := tracker.NewRegistry()
	rec := seedRecord(reg, "2024-06-10")
	reg.MarkBooked(rec)
	lister := &fakeLister{}
	w := newTestWatcher(lister, &fakeBooker{}, reg, time.Date(2024, 6, 3, 12, 0, 1, 0, time.UTC))

	w.burst(context.Background(), rec)
	assert.Equal(t, 0, lister.callCount())
}

func TestBurst_FetchErrorDoesNotAbort(t *testing.T) {
	reg := tracker.NewRegistry()
	rec := seedRecord(reg, "2024-06-10")
	lister := &fakeLister{errFirst: true, classes: []mariana.Class{openClass("c1")}}
	booker := &fakeBooker{}
	w := newTestWatcher(lister, booker, reg, time.Date(2024, 6, 3, 12, 0, 1, 0, time.UTC))

	w.burst(context.Background(), rec)
	assert.Equal(t, 1, booker.attemptCount())
	assert.Equal(t, "c1", reg.Snapshot(rec).RemoteID)
}

func TestBurst_ExhaustsWithoutBooking(t *testing.T) {
	reg := tracker.NewRegistry()
	rec := seedRecord(reg, "2024-06-10")
	lister := &fakeLister{classes: []mariana.Class{notOpenClass("c1")}}
	booker := &fakeBooker{}
	w := newTestWatcher(lister, booker, reg, time.Date(2024, 6, 3, 12, 0, 1, 0, time.UTC))

	w.burst(context.Background(), rec)

	assert.Equal(t, 0, booker.attemptCount())
	assert.Equal(t, 3, lister.callCount())
	assert.False(t, reg.Snapshot(rec).NotificationSent)
}

func TestArmWindows_Bounds(t *testing.T) {
	reg := tracker.NewRegistry()
	reg.Merge([]schedule.Occurrence{
		{Date: "2024-06-15", TimeOfDay: "17:30:00", Label: "inside"},   // opened 30s ago
		{Date: "2024-06-10", TimeOfDay: "17:30:00", Label: "long ago"}, // opened 5 days ago
		{Date: "2024-06-30", TimeOfDay: "17:30:00", Label: "far out"},  // opens in 15 days
	})

	now := time.Date(2024, 6, 8, 12, 0, 30, 0, time.UTC)
	lister := &fakeLister{}
	w := newTestWatcher(lister, &fakeBooker{}, reg, now)
	w.burstPhases = []burstPhase{{checks: 1, interval: 0}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.armWindows(ctx)
	w.wg.Wait()

	var scheduled []string
	for _, r := range reg.Records() {
		if reg.Snapshot(r).WindowScheduled {
			scheduled = append(scheduled, reg.Snapshot(r).Label)
		}
	}
	assert.Equal(t, []string{"inside"}, scheduled)
	assert.Equal(t, 1, lister.callCount())

	// Re-arming is a no-op for already-claimed windows.
	w.armWindows(ctx)
	w.wg.Wait()
	assert.Equal(t, 1, lister.callCount())
}
