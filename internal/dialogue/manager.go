package dialogue

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chadiek/phone-assistant/internal/booking"
	"github.com/chadiek/phone-assistant/internal/llm"
	"github.com/chadiek/phone-assistant/internal/telemetry"
)

// Next steps reported by Converse.
const (
	NextStepContinue          = "continue_conversation"
	NextStepCreateAppointment = "create_appointment"
)

// Generator produces one model reply for a system instruction and a user turn.
type Generator interface {
	Generate(ctx context.Context, system, user string, opts llm.Options) (string, error)
}

// Result is the outcome of one conversational turn.
type Result struct {
	Reply    string
	Slots    booking.Slots
	Complete bool
	NextStep string
}

// Options tune the model call.
type Options struct {
	MaxTokens   int
	Temperature float64
	Language    string
	Timeout     time.Duration
	// Greeting replaces the language's default opening line when set.
	Greeting string
}

// Manager drives slot-filling turns. It holds no per-call state and is safe
// for concurrent use by many sessions.
type Manager struct {
	gen     Generator
	opts    Options
	phrases Phrases
}

func NewManager(gen Generator, opts Options) *Manager {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 200
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	p := PhrasesFor(opts.Language)
	if g := strings.TrimSpace(opts.Greeting); g != "" {
		p.Greeting = g
	}
	return &Manager{gen: gen, opts: opts, phrases: p}
}

// Converse runs one turn. A model failure yields the fallback reply with the
// input slots unchanged.
func (m *Manager) Converse(ctx context.Context, transcript string, slots booking.Slots) Result {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()
	ctx, end := telemetry.StartSpan(ctx, "dialogue.converse")
	reply, err := m.gen.Generate(ctx, systemPrompt(slots), transcript, llm.Options{
		MaxTokens:   m.opts.MaxTokens,
		Temperature: m.opts.Temperature,
	})
	if err == nil && strings.TrimSpace(reply) == "" {
		err = fmt.Errorf("empty reply")
	}
	end(err)
	if err != nil {
		log.Printf("dialogue: model call failed: %v", err)
		telemetry.Inc(ctx, telemetry.ProviderFailures, telemetry.Provider("llm"))
		return Result{Reply: m.phrases.Fallback, Slots: slots, Complete: false, NextStep: NextStepContinue}
	}

	updated := booking.Extract(transcript, slots)
	complete := booking.IsComplete(updated)
	next := NextStepContinue
	if complete {
		next = NextStepCreateAppointment
	}
	return Result{Reply: strings.TrimSpace(reply), Slots: updated, Complete: complete, NextStep: next}
}

// Greeting is the line played when a call connects.
func (m *Manager) Greeting() string {
	return m.phrases.Greeting
}

// Confirmation is the line played after an appointment was booked.
func (m *Manager) Confirmation(slots booking.Slots) string {
	name := strings.TrimSpace(slots.CustomerName)
	service := strings.TrimSpace(slots.ServiceType)
	when := strings.TrimSpace(strings.TrimSpace(slots.PreferredDate) + " " + strings.TrimSpace(slots.PreferredTime))
	if when != "" {
		when = " (" + when + ")"
	}
	return fmt.Sprintf(m.phrases.Confirmation, name, service, when)
}
