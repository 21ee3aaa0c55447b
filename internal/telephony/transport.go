package telephony

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/phone-assistant/internal/audio"
)

var errTransportClosed = errors.New("transport closed")

// wsTransport writes outbound audio onto a media stream websocket.
type wsTransport struct {
	conn *websocket.Conn

	mu        sync.Mutex
	streamSid string
	marks     int
	pending   int // marks sent but not yet echoed back
	closed    bool
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) setStreamSid(sid string) {
	t.mu.Lock()
	t.streamSid = sid
	t.mu.Unlock()
}

// SendAudio splits μ-law audio into 20 ms media frames followed by a mark so
// playback completion is reported back on the stream.
func (t *wsTransport) SendAudio(mulaw []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	if t.streamSid == "" {
		return fmt.Errorf("stream not started")
	}
	for _, frame := range audio.Frames(mulaw) {
		msg := Message{
			Event:     EventMedia,
			StreamSid: t.streamSid,
			Media:     &MediaPayload{Payload: base64.StdEncoding.EncodeToString(frame)},
		}
		if err := t.write(msg); err != nil {
			return err
		}
	}
	t.marks++
	t.pending++
	return t.write(Message{
		Event:     EventMark,
		StreamSid: t.streamSid,
		Mark:      &MarkPayload{Name: fmt.Sprintf("reply-%d", t.marks)},
	})
}

// ackMark records that the caller heard a reply up to its mark.
func (t *wsTransport) ackMark() {
	t.mu.Lock()
	if t.pending > 0 {
		t.pending--
	}
	t.mu.Unlock()
}

// playing reports whether queued reply audio has not finished playing.
func (t *wsTransport) playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending > 0
}

// clear drops every reply still queued for playback on the provider side.
func (t *wsTransport) clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.streamSid == "" {
		return errTransportClosed
	}
	t.pending = 0
	return t.write(Message{Event: EventClear, StreamSid: t.streamSid})
}

func (t *wsTransport) write(msg Message) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return t.conn.WriteJSON(msg)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call completed"))
	return t.conn.Close()
}
