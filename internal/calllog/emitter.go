package calllog

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/chadiek/phone-assistant/internal/telemetry"
)

// Sink persists call-log envelopes somewhere outside the process.
type Sink interface {
	Name() string
	Write(ctx context.Context, env Envelope) error
}

// Emitter fans records out to every sink in the background. Failures are
// logged and counted, never retried or returned to the caller.
type Emitter struct {
	sinks   []Sink
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewEmitter(timeout time.Duration, sinks ...Sink) *Emitter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Emitter{sinks: sinks, timeout: timeout}
}

// Emit snapshots the record and returns immediately.
func (e *Emitter) Emit(r Record) {
	if e == nil || len(e.sinks) == 0 {
		return
	}
	env := NewEnvelope(r)
	for _, s := range e.sinks {
		e.wg.Add(1)
		go func(s Sink) {
			defer e.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
			defer cancel()
			if err := s.Write(ctx, env); err != nil {
				log.Printf("calllog: %s write failed: %v", s.Name(), err)
				telemetry.Inc(ctx, telemetry.LogSinkFailures, telemetry.Provider(s.Name()))
			}
		}(s)
	}
}

// Wait blocks until in-flight writes finish or ctx ends.
func (e *Emitter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
