// Package tracker holds the in-memory run state of the watcher: one
// mutable record per monitored class occurrence, plus the pure status
// classification over remote class data.
//
// All record mutation goes through Registry methods under a single
// mutex, so guard checks (not yet booked, notification not yet sent)
// and the writes they protect are atomic with respect to the periodic
// sweeps and booking-window bursts that share the records.
package tracker

import (
	"sync"
	"time"

	"github.com/example/classwatch/internal/mariana"
	"github.com/example/classwatch/internal/schedule"
)

// BookingState mirrors the remote notion of whether a class currently
// accepts reservations. There is no "closed after opening" state: once
// open, a class stays open until it disappears from the listing.
type BookingState string

const (
	BookingOpen    BookingState = "Open"
	BookingNotOpen BookingState = "Not Open"
)

// Record tracks one class occurrence, identified by (Date, TimeOfDay).
type Record struct {
	Date      string // YYYY-MM-DD
	TimeOfDay string // HH:MM:SS
	Label     string

	// RemoteID is empty until the occurrence is first seen in the
	// API listing; once set it never changes.
	RemoteID string

	LastStatus       string
	LastSpotCount    int
	LastBookingState BookingState

	// NotificationSent guards against duplicate booking attempts for
	// the same availability episode. It resets when the class leaves
	// the available+open state so a later re-opening triggers a fresh
	// attempt.
	NotificationSent bool

	// Booked is terminal: no further polling, bursts, or attempts.
	Booked bool

	// WindowScheduled guards against arming a second burst timer.
	WindowScheduled bool
}

func (r *Record) Key() string { return r.Date + " " + r.TimeOfDay }

// Registry owns the record collection.
type Registry struct {
	mu      sync.Mutex
	records []*Record
}

func NewRegistry() *Registry { return &Registry{} }

// Merge appends a record for every projected occurrence not already
// tracked. The merge key is (date, time-of-day); existing records are
// never duplicated or replaced.
func (g *Registry) Merge(occs []schedule.Occurrence) []*Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[string]bool, len(g.records))
	for _, r := range g.records {
		seen[r.Key()] = true
	}

	var added []*Record
	for _, o := range occs {
		r := &Record{Date: o.Date, TimeOfDay: o.TimeOfDay, Label: o.Label}
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		g.records = append(g.records, r)
		added = append(added, r)
	}
	return added
}

// Prune removes records whose date is strictly before today and
// returns copies of what was dropped.
func (g *Registry) Prune(today string) []Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	var removed []Record
	kept := g.records[:0]
	for _, r := range g.records {
		if r.Date < today {
			removed = append(removed, *r)
			continue
		}
		kept = append(kept, r)
	}
	g.records = kept
	return removed
}

// Records returns the current record set. The slice is a copy; the
// pointed-to records are shared and must only be mutated through
// Registry methods.
func (g *Registry) Records() []*Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Record, len(g.records))
	copy(out, g.records)
	return out
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

// Snapshot returns a copy of the record's current state.
func (g *Registry) Snapshot(r *Record) Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *r
}

// Adopt stores the remote id on first sighting and seeds the snapshot
// fields. A record that already has an id keeps it.
func (g *Registry) Adopt(r *Record, cls mariana.Class, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r.RemoteID == "" {
		r.RemoteID = cls.ID
	}
	r.LastStatus = cls.Status
	r.LastSpotCount = cls.AvailableSpotCount
	r.LastBookingState = BookingStateOf(cls, now)
}

// Observe updates the snapshot from fresh remote data and reports the
// state transitions the poller acts on: became available (was not,
// now is) and became bookable (was not open, now is).
func (g *Registry) Observe(r *Record, cls mariana.Class, now time.Time) (becameAvailable, becameBookable bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prevAvailable := availableFrom(r.LastStatus, r.LastSpotCount)
	current := BookingStateOf(cls, now)

	becameAvailable = !prevAvailable && IsAvailable(cls)
	becameBookable = r.LastBookingState != BookingOpen && current == BookingOpen

	r.LastStatus = cls.Status
	r.LastSpotCount = cls.AvailableSpotCount
	r.LastBookingState = current
	return becameAvailable, becameBookable
}

// BeginAttempt claims the right to invoke a booking attempt. It
// returns false if the record is already booked or an attempt for the
// current availability episode has already fired; otherwise it sets
// NotificationSent and returns true. The check and the set are one
// critical section, so two interleaved paths can never both claim.
func (g *Registry) BeginAttempt(r *Record) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r.Booked || r.NotificationSent {
		return false
	}
	r.NotificationSent = true
	return true
}

// ResetNotification re-arms attempt eligibility; called when the class
// leaves the available+open state or disappears from the listing.
func (g *Registry) ResetNotification(r *Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r.NotificationSent = false
}

// MarkBooked makes the record terminal.
func (g *Registry) MarkBooked(r *Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r.Booked = true
	r.NotificationSent = true
}

func (g *Registry) IsBooked(r *Record) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return r.Booked
}

// ClaimWindow marks the record's booking window as scheduled. Returns
// false if a burst timer was already armed or the record is booked.
func (g *Registry) ClaimWindow(r *Record) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r.Booked || r.WindowScheduled {
		return false
	}
	r.WindowScheduled = true
	return true
}
