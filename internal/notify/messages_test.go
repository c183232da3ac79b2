package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/classwatch/internal/mariana"
)

func TestBookedMessage(t *testing.T) {
	cls := mariana.Class{
		StartDate:   "2024-06-05",
		StartTime:   "17:30:00",
		ClassType:   mariana.ClassType{Name: "Ride 45"},
		Instructors: []mariana.Instructor{{Name: "Jess"}},
	}

	msg := BookedMessage("Wednesday 5:30pm", cls, "res-99", "6", false, "6")
	assert.Contains(t, msg, "Auto-Booked!")
	assert.Contains(t, msg, "5:30 PM")
	assert.Contains(t, msg, "Ride 45")
	assert.Contains(t, msg, "Jess")
	assert.Contains(t, msg, "res-99")
	assert.Contains(t, msg, "<b>Seat:</b> 6")
}

func TestBookedMessage_PreferredSeatTaken(t *testing.T) {
	msg := BookedMessage("Saturday 7:30am", mariana.Class{}, "res-1", "", true, "6")
	assert.Contains(t, msg, "Seat 6:</b> taken")
}

func TestFailureMessage(t *testing.T) {
	cls := mariana.Class{ID: "c1", StartDate: "2024-06-05", StartTime: "07:30:00"}
	msg := FailureMessage("Saturday 7:30am", cls, errors.New("no payment options"), ManualBookingLink("https://studio.example.com/schedule", "c1"))

	assert.Contains(t, msg, "Auto-Book Failed")
	assert.Contains(t, msg, "no payment options")
	assert.Contains(t, msg, "https://studio.example.com/schedule?_mt=%2Fclasses%2Fc1%2Freserve")
}

func TestManualBookingLink_EmptyInputs(t *testing.T) {
	assert.Empty(t, ManualBookingLink("", "c1"))
	assert.Empty(t, ManualBookingLink("https://x", ""))
}
