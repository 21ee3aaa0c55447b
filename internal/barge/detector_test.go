package barge

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcmSine(sr int, hz float64, amp float64, durMs int) []byte {
	n := sr * durMs / 1000
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(amp * math.Sin(2*math.Pi*hz*float64(i)/float64(sr)))
		binary.LittleEndian.PutUint16(out[i*2:(i+1)*2], uint16(v))
	}
	return out
}

func TestDetector_TriggersOnSpeechDuringPlayback(t *testing.T) {
	d := NewDetector(DefaultTelephony())
	d.SetSpeaking(true)

	triggered := false
	speech := pcmSine(8000, 220, 8000, 400)
	// feed in 20 ms telephony frames
	for off := 0; off < len(speech); off += 320 {
		if d.Feed(speech[off : off+320]) {
			triggered = true
			break
		}
	}
	if !triggered {
		t.Fatalf("expected trigger")
	}
	if d.Feed(speech) {
		t.Fatalf("detector must stay idle after a trigger until playback restarts")
	}
}

func TestDetector_IgnoresSpeechWhenSilent(t *testing.T) {
	d := NewDetector(DefaultTelephony())
	if d.Feed(pcmSine(8000, 220, 8000, 400)) {
		t.Fatalf("triggered without playback")
	}
}

func TestDetector_IgnoresQuietLine(t *testing.T) {
	d := NewDetector(DefaultTelephony())
	d.SetSpeaking(true)
	if d.Feed(pcmSine(8000, 220, 200, 600)) {
		t.Fatalf("line noise triggered barge-in")
	}
}

func TestDetector_ShortBlipDoesNotTrigger(t *testing.T) {
	d := NewDetector(DefaultTelephony())
	d.SetSpeaking(true)
	if d.Feed(pcmSine(8000, 220, 8000, 60)) {
		t.Fatalf("60 ms blip triggered barge-in")
	}
	if d.Feed(make([]byte, 8000/1000*2*300)) {
		t.Fatalf("silence triggered barge-in")
	}
}

func TestDetector_OddLengthCarriesOver(t *testing.T) {
	d := NewDetector(Config{})
	d.SetSpeaking(true)
	speech := pcmSine(8000, 220, 8000, 400)
	triggered := false
	for off := 0; off < len(speech); off += 50 {
		end := off + 50
		if end > len(speech) {
			end = len(speech)
		}
		if d.Feed(speech[off:end]) {
			triggered = true
		}
	}
	if !triggered {
		t.Fatalf("expected trigger across uneven writes")
	}
}
