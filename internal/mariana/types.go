package mariana

// Class is one class session as returned by the customer API list and
// detail endpoints. Only the fields the watcher consumes are mapped.
type Class struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Status             string       `json:"status"`
	StartDate          string       `json:"start_date"` // YYYY-MM-DD
	StartTime          string       `json:"start_time"` // HH:MM:SS
	AvailableSpotCount int          `json:"available_spot_count"`
	WaitlistCount      int          `json:"waitlist_count"`
	// Absent means bookable; only an explicit false closes booking.
	IsBookable           *bool        `json:"is_bookable"`
	IsUserReserved       bool         `json:"is_user_reserved"`
	BookingStartDatetime string       `json:"booking_start_datetime"` // RFC3339, may be empty
	SpotOptions          SpotOptions  `json:"spot_options"`
	ClassType            ClassType    `json:"class_type"`
	Instructors          []Instructor `json:"instructors"`
	Layout               *Layout      `json:"layout"`
}

// Remote status literals the classifier keys on.
const (
	StatusWaitlistOnly = "Waitlist Only"
	StatusWaitlistFull = "Waitlist Full"
	StatusNotOpen      = "Not Open"
)

type SpotOptions struct {
	PrimaryAvailability int `json:"primary_availability"`
	WaitlistCapacity    int `json:"waitlist_capacity"`
}

type ClassType struct {
	Name string `json:"name"`
}

type Instructor struct {
	Name string `json:"name"`
}

type Layout struct {
	Spots []Spot `json:"spots"`
}

type Spot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsAvailable bool   `json:"is_available"`
}

type PaymentOption struct {
	ID                string             `json:"id"`
	Description       string             `json:"description"`
	ErrorCode         string             `json:"error_code"`
	MembershipPayment *MembershipPayment `json:"membership_payment"`
}

type MembershipPayment struct {
	IsActive bool `json:"is_active"`
}

// Usable reports whether this option can pay for a class without
// operator intervention: an active membership with no error attached.
func (o PaymentOption) Usable() bool {
	return o.MembershipPayment != nil && o.MembershipPayment.IsActive && o.ErrorCode == ""
}

// ReservationRequest is the body of POST /me/reservations. SpotID is
// optional; when empty the remote side auto-assigns (or rejects).
type ReservationRequest struct {
	ClassID         string
	SpotID          string
	PaymentOptionID string
}

type Reservation struct {
	ID   string `json:"id"`
	Spot *Spot  `json:"spot"`
}
