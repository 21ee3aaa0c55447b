package httpserver

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/chadiek/phone-assistant/internal/telephony"
)

func TestServer_Healthz(t *testing.T) {
	srv := New(Routes{})
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("expected 200 ok, got %d %q", w.Code, w.Body.String())
	}
}

func voiceForm() url.Values {
	return url.Values{"CallSid": {"CA1"}, "From": {"+4930123"}}
}

func TestVoice_RequiresSignature(t *testing.T) {
	srv := New(Routes{
		Voice:           &telephony.VoiceHandler{Disclosure: "Hinweis.", DefaultCraftsmanID: "c-1", PublicBaseURL: "https://calls.example.com"},
		TwilioAuthToken: "secret",
		PublicBaseURL:   "https://calls.example.com",
	})

	r := httptest.NewRequest(http.MethodPost, "/twilio/voice", strings.NewReader(voiceForm().Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	sig := telephony.Sign("secret", "https://calls.example.com/twilio/voice", map[string]string{"CallSid": "CA1", "From": "+4930123"})
	r2 := httptest.NewRequest(http.MethodPost, "/twilio/voice", strings.NewReader(voiceForm().Encode()))
	r2.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r2.Header.Set("X-Twilio-Signature", sig)
	w2 := httptest.NewRecorder()
	srv.ServeHTTP(w2, r2)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w2.Code)
	}
	if !strings.Contains(w2.Body.String(), "wss://calls.example.com/twilio/stream") {
		t.Fatalf("missing stream url: %s", w2.Body.String())
	}
}

func TestVoice_MethodNotAllowed(t *testing.T) {
	srv := New(Routes{Voice: &telephony.VoiceHandler{}})
	r := httptest.NewRequest(http.MethodGet, "/twilio/voice", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestStream_NotMountedWithoutHandler(t *testing.T) {
	srv := New(Routes{})
	r := httptest.NewRequest(http.MethodGet, telephony.StreamPath, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
