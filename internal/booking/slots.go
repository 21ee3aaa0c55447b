package booking

import "strings"

// Field names of the booking slots, as used in prompts and log records.
const (
	FieldCustomerName  = "customerName"
	FieldPhoneNumber   = "phoneNumber"
	FieldServiceType   = "serviceType"
	FieldDescription   = "description"
	FieldAddress       = "address"
	FieldPreferredDate = "preferredDate"
	FieldPreferredTime = "preferredTime"
	FieldUrgency       = "urgency"
)

// Urgency levels.
const (
	UrgencyNormal = "normal"
	UrgencyHigh   = "high"
	UrgencyUrgent = "urgent"
)

// Slots is the booking information collected during one call.
// Empty strings mean "not collected yet".
type Slots struct {
	CustomerName  string `json:"customerName,omitempty"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	ServiceType   string `json:"serviceType,omitempty"`
	Description   string `json:"description,omitempty"`
	Address       string `json:"address,omitempty"`
	PreferredDate string `json:"preferredDate,omitempty"`
	PreferredTime string `json:"preferredTime,omitempty"`
	Urgency       string `json:"urgency,omitempty"`

	AppointmentComplete bool   `json:"appointmentComplete,omitempty"`
	AppointmentID       string `json:"appointmentId,omitempty"`
}

// Merge overlays every non-blank field of update onto s.
// Fields blank in update keep their previous value.
func (s Slots) Merge(update Slots) Slots {
	out := s
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&out.CustomerName, update.CustomerName)
	set(&out.PhoneNumber, update.PhoneNumber)
	set(&out.ServiceType, update.ServiceType)
	set(&out.Description, update.Description)
	set(&out.Address, update.Address)
	set(&out.PreferredDate, update.PreferredDate)
	set(&out.PreferredTime, update.PreferredTime)
	set(&out.Urgency, update.Urgency)
	if update.AppointmentComplete {
		out.AppointmentComplete = true
	}
	set(&out.AppointmentID, update.AppointmentID)
	return out
}

// Fields returns the collected booking fields keyed by their field name.
func (s Slots) Fields() map[string]string {
	all := map[string]string{
		FieldCustomerName:  s.CustomerName,
		FieldPhoneNumber:   s.PhoneNumber,
		FieldServiceType:   s.ServiceType,
		FieldDescription:   s.Description,
		FieldAddress:       s.Address,
		FieldPreferredDate: s.PreferredDate,
		FieldPreferredTime: s.PreferredTime,
		FieldUrgency:       s.Urgency,
	}
	out := make(map[string]string, len(all))
	for k, v := range all {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}
