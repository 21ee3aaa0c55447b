package tts

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

const defaultDeepgramVoice = "aura-2-julius-de"

// Deepgram synthesizes over the speak websocket and collects the binary
// frames into one buffer.
type Deepgram struct {
	apiKey     string
	model      string
	sampleRate int
	encoding   string
	// IdleWindow ends collection once no audio arrived for this long.
	IdleWindow time.Duration
}

func NewDeepgram(apiKey, model string) *Deepgram {
	if model == "" {
		model = defaultDeepgramVoice
	}
	return &Deepgram{apiKey: apiKey, model: model, sampleRate: 8000, encoding: "mulaw", IdleWindow: 400 * time.Millisecond}
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("deepgram: API key missing")
	}
	if text == "" {
		return nil, nil
	}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   d.encoding,
		SampleRate: d.sampleRate,
	}

	var (
		mu       sync.Mutex
		audio    []byte
		lastRecv time.Time
	)
	cb := &speakCallback{onBinary: func(data []byte) error {
		mu.Lock()
		audio = append(audio, data...)
		lastRecv = time.Now()
		mu.Unlock()
		return nil
	}}

	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return nil, fmt.Errorf("deepgram: create ws client: %w", err)
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return nil, fmt.Errorf("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return nil, fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		log.Printf("deepgram: flush error: %v", err)
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			n := len(audio)
			mu.Unlock()
			if n == 0 {
				return nil, ctx.Err()
			}
			return d.snapshot(&mu, &audio), nil
		case <-ticker.C:
			mu.Lock()
			idle := !lastRecv.IsZero() && time.Since(lastRecv) > d.IdleWindow
			mu.Unlock()
			if idle {
				return d.snapshot(&mu, &audio), nil
			}
		}
	}
}

func (d *Deepgram) snapshot(mu *sync.Mutex, audio *[]byte) []byte {
	mu.Lock()
	defer mu.Unlock()
	out := make([]byte, len(*audio))
	copy(out, *audio)
	return out
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(er *msginterfaces.ErrorResponse) error {
	if er != nil {
		log.Printf("deepgram speak error: %+v", *er)
	}
	return nil
}
func (s *speakCallback) UnhandledEvent([]byte) error { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil && len(byMsg) > 0 {
		return s.onBinary(byMsg)
	}
	return nil
}
