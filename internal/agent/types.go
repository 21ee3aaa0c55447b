package agent

import (
	"context"

	"github.com/chadiek/phone-assistant/internal/booking"
	"github.com/chadiek/phone-assistant/internal/calllog"
	"github.com/chadiek/phone-assistant/internal/dialogue"
)

// Transcriber turns one buffered chunk of μ-law audio into text.
// ok is false when the chunk produced nothing usable.
type Transcriber interface {
	Transcribe(ctx context.Context, mulaw []byte) (text string, ok bool)
}

// Dialogue runs slot-filling turns and supplies the fixed spoken lines.
type Dialogue interface {
	Converse(ctx context.Context, transcript string, slots booking.Slots) dialogue.Result
	Greeting() string
	Confirmation(slots booking.Slots) string
}

// Synthesizer renders a reply as μ-law audio. ok is false when there is nothing to play.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio []byte, ok bool)
}

// Finalizer books the appointment once the slots are complete.
type Finalizer interface {
	Finalize(ctx context.Context, craftsmanID, callerPhone string, slots booking.Slots) (booking.Slots, error)
	AfterCall(callID string, slots booking.Slots)
}

// LogEmitter records processed chunks without blocking.
type LogEmitter interface {
	Emit(r calllog.Record)
}

// Transport is the outbound half of the phone connection.
type Transport interface {
	SendAudio(mulaw []byte) error
	Close() error
}

// CallControl ends a call through the telephony provider.
type CallControl interface {
	Hangup(ctx context.Context, callSid string) error
}
