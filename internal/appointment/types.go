package appointment

import (
	"context"
	"errors"
)

// ErrRejected is returned when the collaborator answered but refused the booking.
var ErrRejected = errors.New("appointment: rejected by booking service")

// Data is the booking payload built from the collected slots.
type Data struct {
	CustomerName  string `json:"customerName"`
	PhoneNumber   string `json:"phoneNumber"`
	ServiceType   string `json:"serviceType"`
	Description   string `json:"description"`
	Address       string `json:"address"`
	PreferredDate string `json:"preferredDate"`
	PreferredTime string `json:"preferredTime"`
	Urgency       string `json:"urgency"`
}

// Request is sent once per finalization attempt.
type Request struct {
	AppointmentData Data   `json:"appointmentData"`
	CraftsmanID     string `json:"craftsmanId"`
	PhoneNumber     string `json:"phoneNumber"`
}

// Response is the collaborator's answer.
type Response struct {
	Success       bool   `json:"success"`
	AppointmentID string `json:"appointmentId,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Creator books an appointment and returns its id.
type Creator interface {
	Create(ctx context.Context, req Request) (string, error)
}
