package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress   string
	PublicBaseURL string

	TwilioAccountSID   string
	TwilioAuthToken    string
	StreamTokenSecret  string
	DefaultCraftsmanID string
	DisclosureText     string
	ApologyText        string
	GreetingText       string
	SilenceWindow      int

	DeepgramAPIKey   string
	DeepgramBaseURL  string
	DeepgramSTTModel string
	STTLanguage      string
	WhisperEndpoint  string

	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64

	TTSVendor         string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	ElevenLabsModelID string
	DeepgramTTSModel  string

	AppointmentServiceURL string
	AppointmentDBPath     string

	LogSinkURL             string
	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseLogTable       string

	FlushFrames        int
	ProviderTimeout    time.Duration
	HangupAfterBooking bool
	BargeIn            bool
	OTelStdoutTraces   bool
	OTelStdoutMetrics  bool
}

const (
	defaultDisclosure = "Hinweis: Dieser Anruf wird von einem digitalen Assistenten entgegengenommen. Ihre Angaben werden nur zur Terminvereinbarung verarbeitet, der Anruf wird nicht aufgezeichnet."
	defaultApology    = "Entschuldigung, Ihr Anruf kann gerade nicht angenommen werden. Bitte versuchen Sie es später erneut."
)

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded, using process environment")
	}

	cfg := Config{
		HTTPAddress:   getenv("HTTP_ADDRESS", ":8080"),
		PublicBaseURL: strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),

		TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		StreamTokenSecret:  os.Getenv("STREAM_TOKEN_SECRET"),
		DefaultCraftsmanID: os.Getenv("DEFAULT_CRAFTSMAN_ID"),
		DisclosureText:     getenv("DISCLOSURE_TEXT", defaultDisclosure),
		ApologyText:        getenv("APOLOGY_TEXT", defaultApology),
		GreetingText:       os.Getenv("GREETING_TEXT"),
		SilenceWindow:      getInt("SILENCE_WINDOW_SECONDS", 60),

		DeepgramAPIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramBaseURL:  getenv("DEEPGRAM_BASE_URL", "https://api.eu.deepgram.com"),
		DeepgramSTTModel: getenv("DEEPGRAM_STT_MODEL", "nova-2"),
		STTLanguage:      getenv("STT_LANGUAGE", "de"),
		WhisperEndpoint:  os.Getenv("WHISPER_ENDPOINT"),

		LLMBaseURL:     getenv("LLM_BASE_URL", "https://api.cerebras.ai/v1"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMModel:       getenv("LLM_MODEL", "gpt-oss-120b"),
		LLMMaxTokens:   getInt("LLM_MAX_TOKENS", 200),
		LLMTemperature: getFloat("LLM_TEMPERATURE", 0.4),

		TTSVendor:         strings.ToLower(getenv("TTS_VENDOR", "elevenlabs")),
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
		ElevenLabsModelID: getenv("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
		DeepgramTTSModel:  getenv("DEEPGRAM_TTS_MODEL", "aura-2-julius-de"),

		AppointmentServiceURL: strings.TrimRight(os.Getenv("APPOINTMENT_SERVICE_URL"), "/"),
		AppointmentDBPath:     os.Getenv("APPOINTMENT_DB_PATH"),

		LogSinkURL:             os.Getenv("LOG_SINK_URL"),
		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseLogTable:       getenv("SUPABASE_LOG_TABLE", "phone_call_logs"),

		FlushFrames:        getInt("FLUSH_FRAMES", 150),
		ProviderTimeout:    getDuration("PROVIDER_TIMEOUT", 10*time.Second),
		HangupAfterBooking: getBool("HANGUP_AFTER_BOOKING", false),
		BargeIn:            getBool("BARGE_IN", true),
		OTelStdoutTraces:   getBool("OTEL_STDOUT_TRACES", false),
		OTelStdoutMetrics:  getBool("OTEL_STDOUT_METRICS", false),
	}

	if cfg.TwilioAuthToken == "" {
		log.Println("Warning: TWILIO_AUTH_TOKEN not set - webhook signatures will not be validated")
	}
	if cfg.StreamTokenSecret == "" {
		log.Println("Warning: STREAM_TOKEN_SECRET not set - media streams are accepted without a token")
	}
	if cfg.PublicBaseURL == "" {
		log.Println("Warning: PUBLIC_BASE_URL not set - stream URLs are derived from request headers")
	}
	if cfg.DeepgramAPIKey == "" && cfg.WhisperEndpoint != "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - using the Whisper endpoint for transcription")
	}
	if cfg.LogSinkURL == "" && (cfg.SupabaseURL == "" || cfg.SupabaseServiceRoleKey == "") {
		log.Println("Warning: no call-log sink configured - processed chunks are not recorded")
	}

	log.Printf("config: HTTP_ADDRESS=%s TTS_VENDOR=%s FLUSH_FRAMES=%d PROVIDER_TIMEOUT=%s", cfg.HTTPAddress, cfg.TTSVendor, cfg.FlushFrames, cfg.ProviderTimeout)
	return cfg
}

// Validate reports misconfiguration that makes serving calls impossible.
func (c Config) Validate() error {
	var errs []error
	if c.DeepgramAPIKey == "" && c.WhisperEndpoint == "" {
		errs = append(errs, errors.New("no speech-to-text backend: set DEEPGRAM_API_KEY or WHISPER_ENDPOINT"))
	}
	if c.LLMAPIKey == "" {
		errs = append(errs, errors.New("LLM_API_KEY not set"))
	}
	switch c.TTSVendor {
	case "elevenlabs":
		if c.ElevenLabsKey == "" || c.ElevenLabsVoiceID == "" {
			errs = append(errs, errors.New("ELEVENLABS_API_KEY and ELEVENLABS_VOICE_ID required for TTS_VENDOR=elevenlabs"))
		}
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			errs = append(errs, errors.New("DEEPGRAM_API_KEY required for TTS_VENDOR=deepgram"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TTS_VENDOR %q", c.TTSVendor))
	}
	if c.AppointmentServiceURL == "" && c.AppointmentDBPath == "" {
		errs = append(errs, errors.New("no appointment collaborator: set APPOINTMENT_SERVICE_URL or APPOINTMENT_DB_PATH"))
	}
	if c.FlushFrames <= 0 {
		errs = append(errs, fmt.Errorf("FLUSH_FRAMES must be positive, got %d", c.FlushFrames))
	}
	if c.HangupAfterBooking && (c.TwilioAccountSID == "" || c.TwilioAuthToken == "") {
		errs = append(errs, errors.New("HANGUP_AFTER_BOOKING requires TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN"))
	}
	return errors.Join(errs...)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using %v", key, v, def)
		return def
	}
	return f
}

func getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: %s=%q is not a boolean, using %v", key, v, def)
		return def
	}
	return b
}

// getDuration accepts Go durations ("8s") or plain seconds ("8").
func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	log.Printf("Warning: %s=%q is not a duration, using %s", key, v, def)
	return def
}
