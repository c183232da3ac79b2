package booking

import (
	"errors"
	"fmt"

	"github.com/example/classwatch/internal/mariana"
)

// FailureKind classifies how a booking attempt ended short of a
// reservation.
type FailureKind string

const (
	// FailureAuth: no credential could be obtained at all.
	FailureAuth FailureKind = "AuthFailure"
	// FailureAuthExpired: the API rejected the credential mid-flow;
	// the cache has been invalidated.
	FailureAuthExpired FailureKind = "AuthExpired"
	// FailureNoPaymentOption: the remote returned no usable payment
	// method, so no reservation was attempted.
	FailureNoPaymentOption FailureKind = "NoPaymentOption"
	// FailureReservationRejected: the remote refused the booking; the
	// payload is carried verbatim.
	FailureReservationRejected FailureKind = "ReservationRejected"
	// FailureTransientFetch: a listing/layout/payment fetch failed
	// for non-auth reasons.
	FailureTransientFetch FailureKind = "TransientFetchError"
)

// Failure is the terminal error of one orchestrator invocation.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf extracts the failure kind from an attempt error, or "" for
// nil / untyped errors.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// classify wraps an API error in a Failure, mapping auth sentinels to
// their kinds and everything else to fallback.
func classify(err error, fallback FailureKind) *Failure {
	switch {
	case errors.Is(err, mariana.ErrCredential):
		return &Failure{Kind: FailureAuth, Err: err}
	case errors.Is(err, mariana.ErrAuthExpired):
		return &Failure{Kind: FailureAuthExpired, Err: err}
	}
	return &Failure{Kind: fallback, Err: err}
}
