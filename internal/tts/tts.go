package tts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chadiek/phone-assistant/internal/telemetry"
)

// Backend renders text as 8 kHz μ-law audio, the encoding the phone leg plays.
type Backend interface {
	Name() string
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Adapter wraps a Backend and turns failures into "no audio".
type Adapter struct {
	backend Backend
	timeout time.Duration
}

func NewAdapter(b Backend, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{backend: b, timeout: timeout}
}

// Synthesize returns the audio for text, or false when nothing should be played.
func (a *Adapter) Synthesize(ctx context.Context, text string) ([]byte, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	ctx, end := telemetry.StartSpan(ctx, "tts.synthesize", telemetry.Provider(a.backend.Name()))
	audio, err := a.backend.Synthesize(ctx, text)
	if err == nil && len(audio) == 0 {
		err = errors.New("no audio returned")
	}
	end(err)
	if err != nil {
		log.Printf("tts %s failed: %v", a.backend.Name(), err)
		telemetry.Inc(ctx, telemetry.ProviderFailures, telemetry.Provider(a.backend.Name()))
		return nil, false
	}
	return audio, true
}

// Settings holds the vendor choice and credentials.
type Settings struct {
	Vendor            string
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModelID string
	DeepgramAPIKey    string
	DeepgramModel     string
}

// Select builds the configured backend. Missing credentials are a startup error.
func Select(s Settings) (Backend, error) {
	switch strings.ToLower(s.Vendor) {
	case "", "elevenlabs":
		if s.ElevenLabsAPIKey == "" || s.ElevenLabsVoiceID == "" {
			return nil, fmt.Errorf("tts: elevenlabs requires api key and voice id")
		}
		return NewElevenLabs(s.ElevenLabsAPIKey, s.ElevenLabsVoiceID, s.ElevenLabsModelID), nil
	case "deepgram":
		if s.DeepgramAPIKey == "" {
			return nil, fmt.Errorf("tts: deepgram requires api key")
		}
		return NewDeepgram(s.DeepgramAPIKey, s.DeepgramModel), nil
	default:
		return nil, fmt.Errorf("tts: unknown vendor %q", s.Vendor)
	}
}
