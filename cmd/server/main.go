package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chadiek/phone-assistant/internal/agent"
	"github.com/chadiek/phone-assistant/internal/appointment"
	"github.com/chadiek/phone-assistant/internal/barge"
	"github.com/chadiek/phone-assistant/internal/calllog"
	"github.com/chadiek/phone-assistant/internal/config"
	"github.com/chadiek/phone-assistant/internal/dialogue"
	"github.com/chadiek/phone-assistant/internal/httpserver"
	"github.com/chadiek/phone-assistant/internal/llm"
	"github.com/chadiek/phone-assistant/internal/telemetry"
	"github.com/chadiek/phone-assistant/internal/telephony"
	"github.com/chadiek/phone-assistant/internal/transcript"
	"github.com/chadiek/phone-assistant/internal/tts"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	baseCtx, cancelCalls := context.WithCancel(context.Background())
	defer cancelCalls()

	shutdownTelemetry, err := telemetry.Init(baseCtx, telemetry.Options{
		ServiceName:   "phone-assistant",
		StdoutTraces:  cfg.OTelStdoutTraces,
		StdoutMetrics: cfg.OTelStdoutMetrics,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	sttBackend, err := transcript.Select(transcript.Settings{
		DeepgramAPIKey:  cfg.DeepgramAPIKey,
		DeepgramBaseURL: cfg.DeepgramBaseURL,
		DeepgramModel:   cfg.DeepgramSTTModel,
		Language:        cfg.STTLanguage,
		WhisperEndpoint: cfg.WhisperEndpoint,
	})
	if err != nil {
		log.Fatalf("speech-to-text: %v", err)
	}
	ttsBackend, err := tts.Select(tts.Settings{
		Vendor:            cfg.TTSVendor,
		ElevenLabsAPIKey:  cfg.ElevenLabsKey,
		ElevenLabsVoiceID: cfg.ElevenLabsVoiceID,
		ElevenLabsModelID: cfg.ElevenLabsModelID,
		DeepgramAPIKey:    cfg.DeepgramAPIKey,
		DeepgramModel:     cfg.DeepgramTTSModel,
	})
	if err != nil {
		log.Fatalf("text-to-speech: %v", err)
	}
	log.Printf("providers: stt=%s tts=%s llm=%s", sttBackend.Name(), ttsBackend.Name(), cfg.LLMModel)

	var creator appointment.Creator
	if cfg.AppointmentServiceURL != "" {
		creator = appointment.NewClient(cfg.AppointmentServiceURL)
	} else {
		store, err := appointment.OpenStore(cfg.AppointmentDBPath)
		if err != nil {
			log.Fatalf("appointment store: %v", err)
		}
		defer store.Close()
		creator = store
		log.Printf("appointments are stored locally in %s", cfg.AppointmentDBPath)
	}

	var sinks []calllog.Sink
	if cfg.LogSinkURL != "" {
		sinks = append(sinks, calllog.NewWebhookSink(cfg.LogSinkURL))
	}
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		sb, err := calllog.NewSupabaseSink(calllog.SupabaseConfig{URL: cfg.SupabaseURL, ServiceRoleKey: cfg.SupabaseServiceRoleKey, Table: cfg.SupabaseLogTable})
		if err != nil {
			log.Fatalf("supabase call log: %v", err)
		}
		sinks = append(sinks, sb)
	}
	emitter := calllog.NewEmitter(cfg.ProviderTimeout, sinks...)

	deps := agent.Deps{
		STT: transcript.NewAdapter(sttBackend, cfg.ProviderTimeout),
		Dialogue: dialogue.NewManager(llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel), dialogue.Options{
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			Language:    cfg.STTLanguage,
			Timeout:     cfg.ProviderTimeout,
			Greeting:    cfg.GreetingText,
		}),
		TTS:       tts.NewAdapter(ttsBackend, cfg.ProviderTimeout),
		Finalizer: appointment.NewFinalizer(creator, cfg.ProviderTimeout),
		Log:       emitter,
	}
	if cfg.HangupAfterBooking {
		calls, err := telephony.NewCallControl(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
		if err != nil {
			log.Fatalf("call control: %v", err)
		}
		deps.Calls = calls
	}
	hub := agent.NewHub(deps, agent.Options{
		FlushFrames:        cfg.FlushFrames,
		HangupAfterBooking: cfg.HangupAfterBooking,
		HangupGrace:        time.Second,
	})

	var tokens *telephony.TokenIssuer
	if cfg.StreamTokenSecret != "" {
		tokens = telephony.NewTokenIssuer(cfg.StreamTokenSecret, 10*time.Minute)
	}
	stream := telephony.NewStreamHandler(baseCtx, hub, tokens, cfg.DefaultCraftsmanID)
	if cfg.BargeIn {
		stream = stream.WithBargeIn(barge.DefaultTelephony())
	}
	e := httpserver.New(httpserver.Routes{
		Voice: &telephony.VoiceHandler{
			Disclosure:         cfg.DisclosureText,
			Apology:            cfg.ApologyText,
			Language:           voiceLanguage(cfg.STTLanguage),
			SilenceWindow:      cfg.SilenceWindow,
			PublicBaseURL:      cfg.PublicBaseURL,
			DefaultCraftsmanID: cfg.DefaultCraftsmanID,
			Tokens:             tokens,
		},
		Stream:          stream,
		TwilioAuthToken: cfg.TwilioAuthToken,
		PublicBaseURL:   cfg.PublicBaseURL,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
	// Live calls are stopped as if the caller hung up: remaining audio is flushed.
	cancelCalls()
	if err := hub.Wait(ctx); err != nil {
		log.Printf("calls still active at shutdown: %d", hub.Active())
	}
	if err := emitter.Wait(ctx); err != nil {
		log.Printf("call-log writes pending at shutdown: %v", err)
	}
	if err := shutdownTelemetry(ctx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
}

// voiceLanguage maps the recognizer language to a TwiML <Say> locale.
func voiceLanguage(lang string) string {
	switch lang {
	case "en", "en-US":
		return "en-US"
	case "en-GB":
		return "en-GB"
	default:
		return "de-DE"
	}
}
