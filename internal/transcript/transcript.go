package transcript

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/chadiek/phone-assistant/internal/telemetry"
)

// ErrNoBackend is returned by Select when no recognizer is configured.
var ErrNoBackend = errors.New("transcript: no speech-to-text backend configured")

// Backend recognizes one chunk of 8 kHz μ-law audio.
type Backend interface {
	Name() string
	Recognize(ctx context.Context, mulaw []byte) (string, error)
}

// Adapter wraps a Backend and turns failures into an empty result.
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

// Transcribe returns the recognized text and true, or false when the chunk
// produced no usable transcript.
func (a *Adapter) Transcribe(ctx context.Context, mulaw []byte) (string, bool) {
	if len(mulaw) == 0 {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	ctx, end := telemetry.StartSpan(ctx, "stt.transcribe", telemetry.Provider(a.backend.Name()))
	text, err := a.backend.Recognize(ctx, mulaw)
	end(err)
	if err != nil {
		log.Printf("stt %s failed: %v", a.backend.Name(), err)
		telemetry.Inc(ctx, telemetry.ProviderFailures, telemetry.Provider(a.backend.Name()))
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}

// Settings holds the credentials Select chooses between.
type Settings struct {
	DeepgramAPIKey  string
	DeepgramBaseURL string
	DeepgramModel   string
	Language        string
	WhisperEndpoint string
}

// Select picks the regional cloud recognizer when a key is present and the local
// Whisper server otherwise. The choice is made once per process.
func Select(s Settings) (Backend, error) {
	if s.DeepgramAPIKey != "" {
		return NewDeepgram(s.DeepgramAPIKey, s.DeepgramBaseURL, s.DeepgramModel, s.Language), nil
	}
	if s.WhisperEndpoint != "" {
		return NewWhisper(s.WhisperEndpoint), nil
	}
	return nil, ErrNoBackend
}
