package calllog

import (
	"time"

	"github.com/chadiek/phone-assistant/internal/booking"
)

// EnvelopeType tags every call-log write.
const EnvelopeType = "phone_call_log"

// Record describes one processed audio chunk. It never carries audio.
type Record struct {
	Transcript          string        `json:"transcript"`
	ConversationState   booking.Slots `json:"conversationState"`
	AppointmentComplete bool          `json:"appointmentComplete"`
	Timestamp           time.Time     `json:"timestamp"`
}

// Envelope is the wire shape written to sinks.
type Envelope struct {
	Type          string `json:"type"`
	Data          Record `json:"data"`
	GDPRCompliant bool   `json:"gdpr_compliant"`
	AudioStored   bool   `json:"audio_stored"`
}

// NewEnvelope wraps a record in the compliance envelope.
func NewEnvelope(r Record) Envelope {
	return Envelope{Type: EnvelopeType, Data: r, GDPRCompliant: true, AudioStored: false}
}
