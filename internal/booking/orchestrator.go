// Package booking submits reservation attempts: one seat, one payment
// method, one POST per invocation. Retries are the caller's business;
// the orchestrator never loops.
package booking

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/classwatch/internal/mariana"
	"github.com/example/classwatch/internal/notify"
	"github.com/example/classwatch/internal/tracker"
)

// API is the slice of the booking platform the orchestrator needs.
type API interface {
	GetClass(ctx context.Context, classID string) (mariana.Class, error)
	PaymentOptions(ctx context.Context, classID string) ([]mariana.PaymentOption, error)
	CreateReservation(ctx context.Context, req mariana.ReservationRequest) (mariana.Reservation, error)
}

// Outcome describes a finished attempt.
type Outcome struct {
	// AlreadyReserved: the remote said we hold a reservation; nothing
	// was submitted.
	AlreadyReserved bool
	ReservationID   string
	// SpotName is the seat actually assigned (remote-reported when
	// present, else the one requested).
	SpotName string
	// PreferredTaken: the configured seat was not in the available
	// set and a fallback (or auto-assignment) was used.
	PreferredTaken bool
}

type Orchestrator struct {
	API      API
	Registry *tracker.Registry
	Notifier notify.Notifier
	Logger   *zap.Logger

	// PreferredSpot is the seat name to grab when available.
	PreferredSpot string
	// ScheduleURL is the studio's schedule page, used to build manual
	// booking links in failure notifications.
	ScheduleURL string
}

// Attempt runs one booking attempt for cls against rec and reports
// the outcome to the notifier. Exactly one reservation submission
// happens per invocation, and every invocation produces exactly one
// notification (success or failure) unless the class turned out to be
// already reserved.
func (o *Orchestrator) Attempt(ctx context.Context, cls mariana.Class, rec *tracker.Record) (Outcome, error) {
	logger := o.logger().With(zap.String("label", rec.Label), zap.String("class_id", cls.ID))

	if cls.IsUserReserved {
		logger.Info("already reserved, marking booked")
		o.Registry.MarkBooked(rec)
		return Outcome{AlreadyReserved: true}, nil
	}

	logger.Info("attempting booking")

	detail, options, err := o.fetchClassInfo(ctx, cls.ID)
	if err != nil {
		f := classify(err, FailureTransientFetch)
		o.reportFailure(ctx, rec, cls, f)
		return Outcome{}, f
	}

	spot, preferredTaken := o.selectSpot(detail, logger)

	option, ok := selectPayment(options)
	if !ok {
		f := &Failure{Kind: FailureNoPaymentOption, Err: errors.New("no payment options available for this class")}
		o.reportFailure(ctx, rec, cls, f)
		return Outcome{}, f
	}
	logger.Info("payment option selected",
		zap.String("payment_option", option.ID),
		zap.String("description", option.Description))

	req := mariana.ReservationRequest{ClassID: cls.ID, PaymentOptionID: option.ID}
	if spot != nil {
		req.SpotID = spot.ID
	}
	res, err := o.API.CreateReservation(ctx, req)
	if err != nil {
		f := classify(err, FailureReservationRejected)
		o.reportFailure(ctx, rec, cls, f)
		return Outcome{}, f
	}

	out := Outcome{ReservationID: res.ID, PreferredTaken: preferredTaken}
	switch {
	case res.Spot != nil && res.Spot.Name != "":
		out.SpotName = res.Spot.Name
	case spot != nil:
		out.SpotName = spot.Name
	}

	o.Registry.MarkBooked(rec)
	logger.Info("reservation created",
		zap.String("reservation_id", res.ID),
		zap.String("seat", out.SpotName))
	o.Notifier.Send(ctx, notify.BookedMessage(rec.Label, cls, res.ID, out.SpotName, out.PreferredTaken, o.PreferredSpot))
	return out, nil
}

// fetchClassInfo pulls the seat layout and payment options in
// parallel.
func (o *Orchestrator) fetchClassInfo(ctx context.Context, classID string) (mariana.Class, []mariana.PaymentOption, error) {
	var (
		detail  mariana.Class
		options []mariana.PaymentOption
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		detail, err = o.API.GetClass(gctx, classID)
		if err != nil {
			return fmt.Errorf("class layout: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		options, err = o.API.PaymentOptions(gctx, classID)
		if err != nil {
			return fmt.Errorf("payment options: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return mariana.Class{}, nil, err
	}
	return detail, options, nil
}

// selectSpot picks the preferred seat when it is available, else the
// first available seat, else nothing (the remote may auto-assign).
func (o *Orchestrator) selectSpot(detail mariana.Class, logger *zap.Logger) (spot *mariana.Spot, preferredTaken bool) {
	var available []mariana.Spot
	if detail.Layout != nil {
		for _, s := range detail.Layout.Spots {
			if s.IsAvailable {
				available = append(available, s)
			}
		}
	}
	logger.Info("seat map fetched", zap.Int("available", len(available)))

	for i := range available {
		if available[i].Name == o.PreferredSpot {
			logger.Info("preferred seat available", zap.String("seat", available[i].Name))
			return &available[i], false
		}
	}
	if len(available) > 0 {
		logger.Info("preferred seat taken, using fallback", zap.String("seat", available[0].Name))
		return &available[0], true
	}
	logger.Info("no seats listed as available, submitting without a seat")
	return nil, true
}

// selectPayment prefers the first active membership option with no
// error code, then falls back to the first option in listed order.
func selectPayment(options []mariana.PaymentOption) (mariana.PaymentOption, bool) {
	for _, opt := range options {
		if opt.Usable() {
			return opt, true
		}
	}
	if len(options) > 0 {
		return options[0], true
	}
	return mariana.PaymentOption{}, false
}

func (o *Orchestrator) reportFailure(ctx context.Context, rec *tracker.Record, cls mariana.Class, f *Failure) {
	o.logger().Warn("booking attempt failed",
		zap.String("label", rec.Label),
		zap.String("class_id", cls.ID),
		zap.String("kind", string(f.Kind)),
		zap.Error(f.Err))
	link := notify.ManualBookingLink(o.ScheduleURL, cls.ID)
	o.Notifier.Send(ctx, notify.FailureMessage(rec.Label, cls, f, link))
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
