package tracker

import (
	"fmt"
	"time"

	"github.com/example/classwatch/internal/mariana"
)

// IsAvailable reports whether a class has bookable capacity. The
// combination is deliberately permissive: explicit spot counts win,
// and a status string that is not a recognized waitlist marker counts
// as available. A false positive just gets re-checked on the next
// poll; it is never treated as fatal.
func IsAvailable(cls mariana.Class) bool {
	return cls.AvailableSpotCount > 0 ||
		cls.SpotOptions.PrimaryAvailability > 0 ||
		(cls.Status != mariana.StatusWaitlistOnly && cls.Status != mariana.StatusWaitlistFull)
}

// availableFrom classifies a stored snapshot (status + spot count) the
// same way IsAvailable classifies fresh data, for transition detection.
func availableFrom(status string, spotCount int) bool {
	return IsAvailable(mariana.Class{Status: status, AvailableSpotCount: spotCount})
}

// BookingStateOf reports whether the class accepts reservations right
// now: not when the remote flags it unbookable, carries the "Not Open"
// status, or publishes a booking-open timestamp still in the future.
func BookingStateOf(cls mariana.Class, now time.Time) BookingState {
	if cls.IsBookable != nil && !*cls.IsBookable {
		return BookingNotOpen
	}
	if cls.Status == mariana.StatusNotOpen {
		return BookingNotOpen
	}
	if opens, ok := bookingOpensAt(cls); ok && now.Before(opens) {
		return BookingNotOpen
	}
	return BookingOpen
}

func bookingOpensAt(cls mariana.Class) (time.Time, bool) {
	if cls.BookingStartDatetime == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, cls.BookingStartDatetime)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DetailedStatus renders a human-readable status line for logs and
// notifications. Observability only; decisions never key on it.
func DetailedStatus(cls mariana.Class, now time.Time) string {
	state := string(BookingStateOf(cls, now))
	if state == string(BookingNotOpen) {
		if opens, ok := bookingOpensAt(cls); ok && now.Before(opens) {
			state = fmt.Sprintf("%s (opens %s)", state, opens.Local().Format("Jan 2 3:04 PM"))
		}
	}

	switch {
	case cls.Status == mariana.StatusWaitlistOnly:
		return fmt.Sprintf("WAITLIST ONLY (%d/%d on waitlist) - %s", cls.WaitlistCount, cls.SpotOptions.WaitlistCapacity, state)
	case cls.Status == mariana.StatusWaitlistFull:
		return fmt.Sprintf("WAITLIST FULL (%d/%d on waitlist) - %s", cls.WaitlistCount, cls.SpotOptions.WaitlistCapacity, state)
	case cls.AvailableSpotCount > 0:
		return fmt.Sprintf("AVAILABLE (%d spots open) - %s", cls.AvailableSpotCount, state)
	case cls.Status != "":
		return fmt.Sprintf("%s - %s", cls.Status, state)
	}
	return "UNKNOWN STATUS - " + state
}
