package appointment

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/chadiek/phone-assistant/internal/booking"
	"github.com/chadiek/phone-assistant/internal/telemetry"
)

// Finalizer turns complete slot state into a booked appointment.
type Finalizer struct {
	creator Creator
	timeout time.Duration
}

func NewFinalizer(c Creator, timeout time.Duration) *Finalizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Finalizer{creator: c, timeout: timeout}
}

// BuildRequest maps slots onto the booking payload. Urgency defaults to normal.
func BuildRequest(craftsmanID, callerPhone string, s booking.Slots) Request {
	urgency := strings.TrimSpace(s.Urgency)
	if urgency == "" {
		urgency = booking.UrgencyNormal
	}
	return Request{
		AppointmentData: Data{
			CustomerName:  s.CustomerName,
			PhoneNumber:   s.PhoneNumber,
			ServiceType:   s.ServiceType,
			Description:   s.Description,
			Address:       s.Address,
			PreferredDate: s.PreferredDate,
			PreferredTime: s.PreferredTime,
			Urgency:       urgency,
		},
		CraftsmanID: craftsmanID,
		PhoneNumber: callerPhone,
	}
}

// Finalize books the appointment. On success the returned slots carry the
// completion flag and id; on failure the input slots are returned unchanged.
func (f *Finalizer) Finalize(ctx context.Context, craftsmanID, callerPhone string, s booking.Slots) (booking.Slots, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	ctx, end := telemetry.StartSpan(ctx, "appointment.finalize")
	id, err := f.creator.Create(ctx, BuildRequest(craftsmanID, callerPhone, s))
	end(err)
	if err != nil {
		telemetry.Inc(ctx, telemetry.FinalizeFailures)
		return s, err
	}
	telemetry.Inc(ctx, telemetry.AppointmentsCreated)
	out := s
	out.AppointmentComplete = true
	out.AppointmentID = id
	return out, nil
}

// AfterCall runs once a call that produced a booking has ended.
func (f *Finalizer) AfterCall(callID string, s booking.Slots) {
	if !s.AppointmentComplete {
		return
	}
	log.Printf("[%s] call ended with appointment %s (%s, %s)", callID, s.AppointmentID, s.ServiceType, s.Urgency)
}
