package notify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/example/classwatch/internal/mariana"
	"github.com/example/classwatch/internal/schedule"
)

// BookedMessage formats the success notification for a completed
// reservation.
func BookedMessage(label string, cls mariana.Class, reservationID, spotName string, preferredTaken bool, preferredSpot string) string {
	var b strings.Builder
	b.WriteString("✅ <b>Auto-Booked!</b>\n\n")
	b.WriteString(label + "\n")
	fmt.Fprintf(&b, "<b>Date:</b> %s\n", cls.StartDate)
	fmt.Fprintf(&b, "<b>Time:</b> %s\n", schedule.FormatClock(cls.StartTime))
	if cls.ClassType.Name != "" {
		fmt.Fprintf(&b, "<b>Class:</b> %s\n", cls.ClassType.Name)
	}
	fmt.Fprintf(&b, "<b>Instructor:</b> %s\n", instructorName(cls))
	fmt.Fprintf(&b, "<b>Reservation:</b> %s", reservationID)
	if spotName != "" {
		fmt.Fprintf(&b, "\n<b>Seat:</b> %s", spotName)
	} else if preferredTaken {
		fmt.Fprintf(&b, "\n<b>Seat %s:</b> taken, seat auto-assigned", preferredSpot)
	}
	return b.String()
}

// FailureMessage formats the notification for a failed attempt,
// including a link for manual intervention when available.
func FailureMessage(label string, cls mariana.Class, err error, bookURL string) string {
	var b strings.Builder
	b.WriteString("❌ <b>Auto-Book Failed</b>\n\n")
	b.WriteString(label + "\n")
	if cls.StartDate != "" {
		fmt.Fprintf(&b, "<b>Date:</b> %s\n", cls.StartDate)
	}
	if cls.StartTime != "" {
		fmt.Fprintf(&b, "<b>Time:</b> %s\n", schedule.FormatClock(cls.StartTime))
	}
	fmt.Fprintf(&b, "<b>Error:</b> %v", err)
	if bookURL != "" {
		fmt.Fprintf(&b, "\n\nBook manually: %s", bookURL)
	}
	return b.String()
}

// ManualBookingLink builds the studio's deep link to the reserve page
// for a class, for operators to finish the job by hand.
func ManualBookingLink(scheduleURL, classID string) string {
	if scheduleURL == "" || classID == "" {
		return ""
	}
	return scheduleURL + "?_mt=" + url.QueryEscape(fmt.Sprintf("/classes/%s/reserve", classID))
}

func instructorName(cls mariana.Class) string {
	if len(cls.Instructors) > 0 && cls.Instructors[0].Name != "" {
		return cls.Instructors[0].Name
	}
	return "Unknown"
}
