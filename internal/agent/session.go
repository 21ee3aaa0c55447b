package agent

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/chadiek/phone-assistant/internal/audio"
	"github.com/chadiek/phone-assistant/internal/booking"
	"github.com/chadiek/phone-assistant/internal/calllog"
	"github.com/chadiek/phone-assistant/internal/dialogue"
	"github.com/chadiek/phone-assistant/internal/telemetry"
)

// DefaultFlushFrames is three seconds of 20 ms telephony frames.
const DefaultFlushFrames = 150

// EventKind identifies a transport lifecycle event.
type EventKind int

const (
	EventStart EventKind = iota
	EventMedia
	EventStop
)

// CallInfo is the call metadata delivered with the start event.
type CallInfo struct {
	CallSid     string
	StreamSid   string
	CraftsmanID string
	PhoneNumber string
}

// Event is one transport lifecycle event for a session.
type Event struct {
	Kind    EventKind
	Call    CallInfo // start only
	Payload []byte   // media only, raw μ-law
}

// Deps are the shared, stateless collaborators of every session.
type Deps struct {
	STT       Transcriber
	Dialogue  Dialogue
	TTS       Synthesizer
	Finalizer Finalizer
	Log       LogEmitter
	Calls     CallControl
}

// Options are deployment constants applied to every session.
type Options struct {
	FlushFrames        int
	HangupAfterBooking bool
	// HangupGrace is added to the confirmation playback time before hanging up.
	HangupGrace time.Duration
}

// Session owns the state of one phone call. Events are handled one at a time
// in arrival order by the goroutine running Run.
type Session struct {
	id        string
	deps      Deps
	opts      Options
	transport Transport

	events chan Event
	done   chan struct{}

	mu          sync.Mutex
	started     bool
	call        CallInfo
	stage       Stage
	buffer      [][]byte
	slots       booking.Slots
	hangupTimer *time.Timer
}

func NewSession(id string, t Transport, deps Deps, opts Options) *Session {
	if opts.FlushFrames <= 0 {
		opts.FlushFrames = DefaultFlushFrames
	}
	if opts.HangupGrace <= 0 {
		opts.HangupGrace = time.Second
	}
	return &Session{
		id:        id,
		deps:      deps,
		opts:      opts,
		transport: t,
		events:    make(chan Event, 4*opts.FlushFrames),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session reached completed and released its transport.
func (s *Session) Done() <-chan struct{} { return s.done }

// Enqueue hands an event to the session loop. It blocks while the queue is
// full and returns false once the session has finished.
func (s *Session) Enqueue(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Run processes queued events until a stop event was handled. If ctx ends
// first the session is stopped as if the caller hung up.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case ev := <-s.events:
			s.Handle(ctx, ev)
			if ev.Kind == EventStop {
				return
			}
		case <-ctx.Done():
			s.Handle(context.WithoutCancel(ctx), Event{Kind: EventStop})
			return
		}
	}
}

// Handle applies one event. Callers must not invoke it concurrently.
func (s *Session) Handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventStart:
		s.onStart(ctx, ev.Call)
	case EventMedia:
		s.onMedia(ctx, ev.Payload)
	case EventStop:
		s.onStop(ctx)
	}
}

func (s *Session) onStart(ctx context.Context, call CallInfo) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		log.Printf("[%s] duplicate start ignored", s.id)
		return
	}
	s.started = true
	s.call = call
	s.stage = StageGreeting
	s.buffer = nil
	s.slots = booking.Slots{}
	s.mu.Unlock()

	log.Printf("[%s] call started craftsman=%s call=%s", s.id, call.CraftsmanID, call.CallSid)
	s.speak(ctx, s.deps.Dialogue.Greeting())
}

func (s *Session) onMedia(ctx context.Context, payload []byte) {
	if len(payload) == 0 {
		return
	}
	s.mu.Lock()
	if !s.started || s.stage == StageCompleted {
		s.mu.Unlock()
		return
	}
	frame := make([]byte, len(payload))
	copy(frame, payload)
	s.buffer = append(s.buffer, frame)
	full := len(s.buffer) >= s.opts.FlushFrames
	s.mu.Unlock()

	if full {
		s.flush(ctx)
	}
}

func (s *Session) onStop(ctx context.Context) {
	s.mu.Lock()
	started := s.started
	pending := len(s.buffer) > 0 && s.stage != StageCompleted
	if s.hangupTimer != nil {
		s.hangupTimer.Stop()
	}
	s.mu.Unlock()

	if started && pending {
		s.flush(ctx)
	}

	s.mu.Lock()
	slots := s.slots
	s.stage = s.stage.advance(StageCompleted)
	s.buffer = nil
	s.mu.Unlock()

	if slots.AppointmentComplete && s.deps.Finalizer != nil {
		s.deps.Finalizer.AfterCall(s.id, slots)
	}
	if err := s.transport.Close(); err != nil {
		log.Printf("[%s] transport close: %v", s.id, err)
	}
	log.Printf("[%s] call completed (appointment=%v)", s.id, slots.AppointmentComplete)
}

// ErrNoTranscript marks a flush whose chunk produced no usable transcript.
var ErrNoTranscript = errors.New("no transcript")

// flush runs the buffered chunk through transcribe, converse, optional
// finalize, synthesize and log.
func (s *Session) flush(ctx context.Context) {
	s.mu.Lock()
	frames := s.buffer
	s.buffer = nil
	call := s.call
	slots := s.slots
	s.mu.Unlock()

	chunk := joinFrames(frames)
	for i := range frames {
		clear(frames[i])
		frames[i] = nil
	}

	var outcome error
	ctx, end := telemetry.StartSpan(ctx, "call.flush")
	defer func() { end(outcome) }()

	text, ok := s.deps.STT.Transcribe(ctx, chunk)
	clear(chunk)
	if !ok {
		log.Printf("[%s] chunk dropped: no transcript", s.id)
		telemetry.Inc(ctx, telemetry.ChunksDropped)
		outcome = ErrNoTranscript
		return
	}
	log.Printf("[%s] heard: %s", s.id, text)

	res := s.deps.Dialogue.Converse(ctx, text, slots)
	slots = res.Slots
	reply := res.Reply

	s.mu.Lock()
	s.slots = slots
	s.stage = s.stage.advance(StageCollecting)
	s.mu.Unlock()

	booked := false
	if res.NextStep == dialogue.NextStepCreateAppointment && !slots.AppointmentComplete && s.deps.Finalizer != nil {
		updated, err := s.deps.Finalizer.Finalize(ctx, call.CraftsmanID, call.PhoneNumber, slots)
		if err != nil {
			log.Printf("[%s] appointment creation failed: %v", s.id, err)
			outcome = err
		} else {
			slots = updated
			booked = true
			reply = s.deps.Dialogue.Confirmation(updated)
			s.mu.Lock()
			s.slots = updated
			s.stage = s.stage.advance(StageFinalizing)
			s.mu.Unlock()
			log.Printf("[%s] appointment %s created", s.id, updated.AppointmentID)
		}
	}

	played := s.speak(ctx, reply)

	if s.deps.Log != nil {
		s.deps.Log.Emit(calllog.Record{
			Transcript:          text,
			ConversationState:   slots,
			AppointmentComplete: slots.AppointmentComplete,
			Timestamp:           time.Now().UTC(),
		})
	}
	telemetry.Inc(ctx, telemetry.ChunksProcessed)

	if booked {
		s.scheduleHangup(call.CallSid, played)
	}
}

// speak synthesizes text and queues it on the transport. It returns the
// playback length of the queued audio.
func (s *Session) speak(ctx context.Context, text string) time.Duration {
	if s.deps.TTS == nil {
		return 0
	}
	mulaw, ok := s.deps.TTS.Synthesize(ctx, text)
	if !ok {
		return 0
	}
	if err := s.transport.SendAudio(mulaw); err != nil {
		log.Printf("[%s] send audio: %v", s.id, err)
		return 0
	}
	return time.Duration(audio.Duration(len(mulaw))) * time.Millisecond
}

func (s *Session) scheduleHangup(callSid string, playback time.Duration) {
	if !s.opts.HangupAfterBooking || s.deps.Calls == nil || callSid == "" {
		return
	}
	delay := playback + s.opts.HangupGrace
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hangupTimer != nil {
		s.hangupTimer.Stop()
	}
	s.hangupTimer = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.deps.Calls.Hangup(ctx, callSid); err != nil {
			log.Printf("[%s] hangup failed: %v", s.id, err)
		}
	})
}

func joinFrames(frames [][]byte) []byte {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	out := make([]byte, 0, n)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}

// Stage reports the current stage.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Slots returns a copy of the collected booking slots.
func (s *Session) Slots() booking.Slots {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots
}

// BufferedFrames reports how many frames await the next flush.
func (s *Session) BufferedFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}
