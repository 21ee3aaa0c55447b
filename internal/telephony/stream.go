package telephony

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chadiek/phone-assistant/internal/agent"
	"github.com/chadiek/phone-assistant/internal/audio"
	"github.com/chadiek/phone-assistant/internal/barge"
	"github.com/chadiek/phone-assistant/internal/telemetry"
)

// SessionOpener creates a call session bound to a transport.
type SessionOpener interface {
	Open(ctx context.Context, t agent.Transport) *agent.Session
}

// StreamHandler terminates Twilio media streams and feeds their events to
// call sessions.
type StreamHandler struct {
	sessions           SessionOpener
	tokens             *TokenIssuer
	defaultCraftsmanID string
	// baseCtx outlives individual requests; cancelling it stops every session.
	baseCtx  context.Context
	upgrader websocket.Upgrader
	bargeIn  *barge.Config
}

// NewStreamHandler builds the handler. tokens may be nil to accept unsigned streams.
func NewStreamHandler(ctx context.Context, sessions SessionOpener, tokens *TokenIssuer, defaultCraftsmanID string) *StreamHandler {
	return &StreamHandler{
		sessions:           sessions,
		tokens:             tokens,
		defaultCraftsmanID: defaultCraftsmanID,
		baseCtx:            ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// WithBargeIn clears queued reply audio when the caller talks over it.
func (h *StreamHandler) WithBargeIn(cfg barge.Config) *StreamHandler {
	h.bargeIn = &cfg
	return h
}

func (h *StreamHandler) Handle(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("stream upgrade failed: %v", err)
		return nil
	}
	t := newWSTransport(conn)
	sess := h.sessions.Open(h.baseCtx, t)
	log.Printf("[%s] media stream connected from %s", sess.ID(), c.RealIP())

	h.readLoop(conn, t, sess)
	<-sess.Done()
	return nil
}

func (h *StreamHandler) readLoop(conn *websocket.Conn, t *wsTransport, sess *agent.Session) {
	var detector *barge.Detector
	if h.bargeIn != nil {
		detector = barge.NewDetector(*h.bargeIn)
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[%s] stream read error: %v", sess.ID(), err)
			}
			sess.Enqueue(agent.Event{Kind: agent.EventStop})
			return
		}
		msg, err := DecodeMessage(data)
		if err != nil {
			log.Printf("[%s] dropping malformed stream message: %v", sess.ID(), err)
			telemetry.Inc(h.baseCtx, telemetry.MalformedMessages)
			continue
		}

		switch msg.Event {
		case EventConnected:
		case EventStart:
			info, err := h.callInfo(msg)
			if err != nil {
				log.Printf("[%s] rejecting stream: %v", sess.ID(), err)
				sess.Enqueue(agent.Event{Kind: agent.EventStop})
				return
			}
			t.setStreamSid(info.StreamSid)
			sess.Enqueue(agent.Event{Kind: agent.EventStart, Call: info})
		case EventMedia:
			if msg.Media.Track != "" && msg.Media.Track != "inbound" {
				continue
			}
			payload, err := msg.Audio()
			if err != nil {
				log.Printf("[%s] dropping media frame: %v", sess.ID(), err)
				telemetry.Inc(h.baseCtx, telemetry.MalformedMessages)
				continue
			}
			if detector != nil {
				h.detectBargeIn(detector, t, sess, payload)
			}
			if !sess.Enqueue(agent.Event{Kind: agent.EventMedia, Payload: payload}) {
				return
			}
		case EventStop:
			sess.Enqueue(agent.Event{Kind: agent.EventStop})
			return
		case EventMark:
			t.ackMark()
			if msg.Mark != nil {
				log.Printf("[%s] playback finished: %s", sess.ID(), msg.Mark.Name)
			}
		case EventDTMF:
			if msg.DTMF != nil {
				log.Printf("[%s] dtmf %s", sess.ID(), msg.DTMF.Digit)
			}
		default:
			log.Printf("[%s] ignoring stream event %q", sess.ID(), msg.Event)
		}
	}
}

func (h *StreamHandler) detectBargeIn(d *barge.Detector, t *wsTransport, sess *agent.Session, mulaw []byte) {
	d.SetSpeaking(t.playing())
	if !d.Feed(audio.DecodeMulaw(mulaw)) {
		return
	}
	if err := t.clear(); err != nil {
		log.Printf("[%s] barge-in clear failed: %v", sess.ID(), err)
		return
	}
	telemetry.Inc(h.baseCtx, telemetry.BargeIns)
	log.Printf("[%s] caller barged in, playback cleared", sess.ID())
}

// callInfo reads call metadata from the start event. With a token issuer the
// signed token is authoritative for craftsman and caller.
func (h *StreamHandler) callInfo(msg Message) (agent.CallInfo, error) {
	start := msg.Start
	params := start.CustomParameters
	info := agent.CallInfo{
		CallSid:     start.CallSid,
		StreamSid:   start.StreamSid,
		CraftsmanID: params["craftsman_id"],
		PhoneNumber: params["phone_number"],
	}
	if info.StreamSid == "" {
		info.StreamSid = msg.StreamSid
	}
	if h.tokens != nil {
		claims, err := h.tokens.Verify(params["token"])
		if err != nil {
			return agent.CallInfo{}, err
		}
		if claims.CallSid != "" && info.CallSid != "" && claims.CallSid != info.CallSid {
			return agent.CallInfo{}, ErrInvalidStreamToken
		}
		info.CraftsmanID = claims.CraftsmanID
		info.PhoneNumber = claims.PhoneNumber
	}
	if info.CraftsmanID == "" {
		info.CraftsmanID = h.defaultCraftsmanID
	}
	return info, nil
}
