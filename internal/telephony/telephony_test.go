package telephony

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chadiek/phone-assistant/internal/agent"
	"github.com/chadiek/phone-assistant/internal/audio"
	"github.com/chadiek/phone-assistant/internal/barge"
	"github.com/chadiek/phone-assistant/internal/dialogue"
	"github.com/chadiek/phone-assistant/internal/llm"
)

func TestSignature_AcceptsDefaultPort(t *testing.T) {
	params := map[string]string{"CallSid": "CA1", "From": "+4930123"}
	sig := Sign("secret", "https://example.com/twilio/voice", params)
	if !ValidateSignature("secret", sig, "https://example.com:443/twilio/voice", params) {
		t.Fatal("explicit default port should validate")
	}
}

func TestSignature_RoundTrip(t *testing.T) {
	params := map[string]string{"CallSid": "CA1", "From": "+4930123", "To": "+4930999"}
	sig := Sign("secret", "https://example.com/twilio/voice", params)
	if !ValidateSignature("secret", sig, "https://example.com/twilio/voice", params) {
		t.Fatal("expected valid signature")
	}
	if ValidateSignature("other", sig, "https://example.com/twilio/voice", params) {
		t.Fatal("wrong token accepted")
	}
	params["From"] = "+4930000"
	if ValidateSignature("secret", sig, "https://example.com/twilio/voice", params) {
		t.Fatal("tampered params accepted")
	}
	if ValidateSignature("secret", "", "https://example.com/twilio/voice", params) {
		t.Fatal("empty signature accepted")
	}
}

func postForm(e *echo.Echo, target string, form url.Values, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if sig != "" {
		req.Header.Set("X-Twilio-Signature", sig)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuth_Middleware(t *testing.T) {
	e := echo.New()
	var seen map[string]string
	e.POST("/twilio/voice", func(c echo.Context) error {
		seen, _ = c.Get(ParamsKey).(map[string]string)
		return c.NoContent(http.StatusOK)
	}, Auth("secret", "https://example.com"))

	form := url.Values{"CallSid": {"CA1"}, "From": {"+4930123"}}
	good := Sign("secret", "https://example.com/twilio/voice", map[string]string{"CallSid": "CA1", "From": "+4930123"})

	if rec := postForm(e, "/twilio/voice", form, good); rec.Code != http.StatusOK {
		t.Fatalf("signed request: status %d", rec.Code)
	}
	if seen["From"] != "+4930123" {
		t.Fatalf("params not forwarded: %v", seen)
	}
	if rec := postForm(e, "/twilio/voice", form, "bogus"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: status %d", rec.Code)
	}
	if rec := postForm(e, "/twilio/voice", form, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature: status %d", rec.Code)
	}
}

func TestAuth_NoTokenSkipsValidation(t *testing.T) {
	e := echo.New()
	e.POST("/twilio/voice", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, Auth("", ""))
	if rec := postForm(e, "/twilio/voice", url.Values{"CallSid": {"CA1"}}, ""); rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestPublicURL(t *testing.T) {
	e := echo.New()
	newCtx := func(host string, headers map[string]string) echo.Context {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = host
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return e.NewContext(req, httptest.NewRecorder())
	}

	if got := PublicURL(newCtx("internal:8080", nil), "https://calls.example.com/", "/twilio/voice"); got != "https://calls.example.com/twilio/voice" {
		t.Fatalf("base url: %s", got)
	}
	fwd := map[string]string{"X-Forwarded-Proto": "https", "X-Forwarded-Host": "abc.ngrok.app"}
	if got := PublicURL(newCtx("internal:8080", fwd), "", "twilio/voice"); got != "https://abc.ngrok.app/twilio/voice" {
		t.Fatalf("forwarded: %s", got)
	}
	if got := PublicURL(newCtx("localhost:8080", nil), "", "/x"); got != "http://localhost:8080/x" {
		t.Fatalf("localhost: %s", got)
	}
	if got := StreamURL(newCtx("calls.example.com", nil), "", StreamPath); got != "wss://calls.example.com/twilio/stream" {
		t.Fatalf("stream url: %s", got)
	}
	if got := StreamURL(newCtx("x", nil), "http://localhost:8080", StreamPath); got != "ws://localhost:8080/twilio/stream" {
		t.Fatalf("plain stream url: %s", got)
	}
}

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Minute)
	token, err := issuer.Issue("c-1", "+4930123", "CA1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.CraftsmanID != "c-1" || claims.PhoneNumber != "+4930123" || claims.CallSid != "CA1" {
		t.Fatalf("claims: %+v", claims)
	}

	if _, err := NewTokenIssuer("other", time.Minute).Verify(token); !errors.Is(err, ErrInvalidStreamToken) {
		t.Fatalf("wrong secret: %v", err)
	}
	if _, err := issuer.Verify("not-a-token"); !errors.Is(err, ErrInvalidStreamToken) {
		t.Fatalf("garbage: %v", err)
	}

	later := NewTokenIssuer("s3cret", time.Minute)
	later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := later.Verify(token); !errors.Is(err, ErrInvalidStreamToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

func TestDecodeMessage(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"not json", `{`, true},
		{"no event", `{"streamSid":"MZ1"}`, true},
		{"start without payload", `{"event":"start"}`, true},
		{"media without payload", `{"event":"media"}`, true},
		{"connected", `{"event":"connected","protocol":"Call"}`, false},
		{"unknown", `{"event":"something-new"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tc.in))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}

	m, err := DecodeMessage([]byte(`{"event":"media","streamSid":"MZ1","media":{"track":"inbound","payload":"` + base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) + `"}}`))
	if err != nil {
		t.Fatalf("decode media: %v", err)
	}
	b, err := m.Audio()
	if err != nil || len(b) != 3 || b[2] != 3 {
		t.Fatalf("audio: %v %v", b, err)
	}
}

func voiceRequest(t *testing.T, h *VoiceHandler, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.POST("/twilio/voice", h.Handle, Auth("", ""))
	return postForm(e, target, url.Values{"CallSid": {"CA1"}, "From": {"+4930123"}}, "")
}

func TestVoiceHandler_ConnectsStream(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Minute)
	h := &VoiceHandler{
		Disclosure:    "Dieser Anruf wird automatisch verarbeitet.",
		Apology:       "Entschuldigung.",
		Language:      "de-DE",
		SilenceWindow: 45,
		PublicBaseURL: "https://calls.example.com",
		Tokens:        issuer,
	}
	rec := voiceRequest(t, h, "/twilio/voice?craftsman_id=c-42")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "application/xml") {
		t.Fatalf("content type %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"<Say", "Dieser Anruf wird automatisch verarbeitet.", "<Connect", "wss://calls.example.com/twilio/stream", "c-42", "+4930123", "<Pause", "45"} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in %s", want, body)
		}
	}
	if strings.Contains(body, "<Hangup") {
		t.Fatalf("unexpected hangup: %s", body)
	}
}

func TestVoiceHandler_ApologyWithoutCraftsman(t *testing.T) {
	h := &VoiceHandler{Disclosure: "Hinweis.", Apology: "Entschuldigung, bitte später erneut anrufen.", Language: "de-DE"}
	rec := voiceRequest(t, h, "/twilio/voice")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Entschuldigung, bitte später erneut anrufen.") || !strings.Contains(body, "<Hangup") {
		t.Fatalf("expected apology document, got %s", body)
	}
	if strings.Contains(body, "<Connect") {
		t.Fatalf("apology must not connect a stream: %s", body)
	}
}

func TestVoiceHandler_StaticFallback(t *testing.T) {
	rec := voiceRequest(t, &VoiceHandler{}, "/twilio/voice")
	if rec.Body.String() != fallbackApology {
		t.Fatalf("got %s", rec.Body.String())
	}
}

func TestCallControl_RequiresCredentials(t *testing.T) {
	if _, err := NewCallControl("", "token"); err == nil {
		t.Fatal("expected error without account sid")
	}
	if _, err := NewCallControl("AC1", ""); err == nil {
		t.Fatal("expected error without auth token")
	}
}

type stubSTT struct {
	mu    sync.Mutex
	calls int
}

func (s *stubSTT) Transcribe(ctx context.Context, mulaw []byte) (string, bool) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return "Mein Name ist Anna Schmidt", true
}

func (s *stubSTT) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, system, user string, opts llm.Options) (string, error) {
	return "Danke, Frau Schmidt. Worum geht es?", nil
}

type stubTTS struct{}

func (stubTTS) Synthesize(ctx context.Context, text string) ([]byte, bool) {
	return make([]byte, 320), true
}

type recordingOpener struct {
	hub      *agent.Hub
	sessions chan *agent.Session
}

func (r *recordingOpener) Open(ctx context.Context, t agent.Transport) *agent.Session {
	s := r.hub.Open(ctx, t)
	r.sessions <- s
	return s
}

func newStreamServer(t *testing.T, tokens *TokenIssuer, flushFrames int, bargeIn bool) (*websocket.Conn, *stubSTT, *recordingOpener) {
	t.Helper()
	stt := &stubSTT{}
	hub := agent.NewHub(agent.Deps{
		STT:      stt,
		Dialogue: dialogue.NewManager(stubGenerator{}, dialogue.Options{Language: "de"}),
		TTS:      stubTTS{},
	}, agent.Options{FlushFrames: flushFrames})
	opener := &recordingOpener{hub: hub, sessions: make(chan *agent.Session, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	e := echo.New()
	handler := NewStreamHandler(ctx, opener, tokens, "c-default")
	if bargeIn {
		handler = handler.WithBargeIn(barge.DefaultTelephony())
	}
	e.GET(StreamPath, handler.Handle)
	srv := httptest.NewServer(e)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+StreamPath, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		cancel()
		srv.Close()
	})
	return conn, stt, opener
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readUntilMark(t *testing.T, conn *websocket.Conn) (frames int, mark string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch m.Event {
		case EventMedia:
			if m.StreamSid != "MZ1" {
				t.Fatalf("outbound frame for stream %q", m.StreamSid)
			}
			frames++
		case EventMark:
			return frames, m.Mark.Name
		}
	}
}

func startMessage(params map[string]string) Message {
	return Message{Event: EventStart, StreamSid: "MZ1", Start: &StartPayload{StreamSid: "MZ1", CallSid: "CA1", CustomParameters: params}}
}

func mediaMessage() Message {
	return Message{Event: EventMedia, StreamSid: "MZ1", Media: &MediaPayload{Track: "inbound", Payload: base64.StdEncoding.EncodeToString(make([]byte, 160))}}
}

func TestStreamHandler_RunsCall(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Minute)
	conn, stt, opener := newStreamServer(t, issuer, 2, false)
	token, _ := issuer.Issue("c-7", "+4930123", "CA1")

	sendJSON(t, conn, Message{Event: EventConnected})
	sendJSON(t, conn, startMessage(map[string]string{"token": token, "craftsman_id": "spoofed"}))
	sess := <-opener.sessions

	if frames, mark := readUntilMark(t, conn); frames != 2 || mark != "reply-1" {
		t.Fatalf("greeting: frames=%d mark=%s", frames, mark)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"event":`))
	sendJSON(t, conn, mediaMessage())
	sendJSON(t, conn, mediaMessage())

	if frames, mark := readUntilMark(t, conn); frames != 2 || mark != "reply-2" {
		t.Fatalf("reply: frames=%d mark=%s", frames, mark)
	}
	if stt.Calls() != 1 {
		t.Fatalf("stt calls: %d", stt.Calls())
	}

	sendJSON(t, conn, Message{Event: EventStop, StreamSid: "MZ1", Stop: &StopPayload{CallSid: "CA1"}})
	select {
	case <-sess.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not complete")
	}
	if got := sess.Slots(); got.CustomerName != "Anna Schmidt" {
		t.Fatalf("slots: %+v", got)
	}
	if sess.Stage() != agent.StageCompleted {
		t.Fatalf("stage: %s", sess.Stage())
	}
}

func TestStreamHandler_RejectsBadToken(t *testing.T) {
	conn, stt, opener := newStreamServer(t, NewTokenIssuer("s3cret", time.Minute), 2, false)
	forged, _ := NewTokenIssuer("other", time.Minute).Issue("c-7", "+4930123", "CA1")

	sendJSON(t, conn, startMessage(map[string]string{"token": forged}))
	sess := <-opener.sessions
	select {
	case <-sess.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session not closed")
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed")
	}
	if stt.Calls() != 0 {
		t.Fatal("audio processed for rejected stream")
	}
}

func loudFrame() string {
	pcm := make([]byte, audio.FrameBytes*2)
	for i := 0; i < audio.FrameBytes; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*220*float64(i)/audio.SampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return base64.StdEncoding.EncodeToString(audio.EncodeMulaw(pcm))
}

func TestStreamHandler_BargeInClearsPlayback(t *testing.T) {
	conn, _, opener := newStreamServer(t, nil, 1000, true)
	sendJSON(t, conn, startMessage(nil))
	<-opener.sessions

	if _, mark := readUntilMark(t, conn); mark != "reply-1" {
		t.Fatalf("greeting mark %s", mark)
	}
	// the greeting mark is not echoed back, so playback is still running
	payload := loudFrame()
	for i := 0; i < 20; i++ {
		sendJSON(t, conn, Message{Event: EventMedia, StreamSid: "MZ1", Media: &MediaPayload{Track: "inbound", Payload: payload}})
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	if m.Event != EventClear || m.StreamSid != "MZ1" {
		t.Fatalf("expected clear, got %+v", m)
	}
}

func TestStreamHandler_NoBargeInAfterPlaybackFinished(t *testing.T) {
	conn, _, opener := newStreamServer(t, nil, 1000, true)
	sendJSON(t, conn, startMessage(nil))
	sess := <-opener.sessions

	_, mark := readUntilMark(t, conn)
	sendJSON(t, conn, Message{Event: EventMark, StreamSid: "MZ1", Mark: &MarkPayload{Name: mark}})
	payload := loudFrame()
	for i := 0; i < 20; i++ {
		sendJSON(t, conn, Message{Event: EventMedia, StreamSid: "MZ1", Media: &MediaPayload{Track: "inbound", Payload: payload}})
	}
	sendJSON(t, conn, Message{Event: EventStop, StreamSid: "MZ1"})
	select {
	case <-sess.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not complete")
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			return
		}
		if m.Event == EventClear {
			t.Fatal("clear sent after playback had finished")
		}
	}
}
