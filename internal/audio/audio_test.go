package audio

import (
	"encoding/binary"
	"testing"
)

func TestMulawRoundTripSilence(t *testing.T) {
	pcm := make([]byte, 320)
	enc := EncodeMulaw(pcm)
	if len(enc) != 160 {
		t.Fatalf("encoded len: got %d", len(enc))
	}
	for i, b := range enc {
		if b != 0xFF {
			t.Fatalf("silence byte %d: got %#x", i, b)
		}
	}
	dec := DecodeMulaw(enc)
	for i, b := range dec {
		if b != 0 {
			t.Fatalf("decoded silence byte %d: got %d", i, b)
		}
	}
}

func TestMulawPreservesSignAndMagnitude(t *testing.T) {
	for _, s := range []int16{1000, -1000, 8000, -8000, 30000, -30000} {
		pcm := []byte{byte(s), byte(uint16(s) >> 8)}
		dec := DecodeMulaw(EncodeMulaw(pcm))
		got := int16(binary.LittleEndian.Uint16(dec))
		if (got < 0) != (s < 0) {
			t.Fatalf("sign flipped for %d: got %d", s, got)
		}
		diff := int(got) - int(s)
		if diff < 0 {
			diff = -diff
		}
		tol := int(s) / 16
		if tol < 0 {
			tol = -tol
		}
		if diff > tol+16 {
			t.Fatalf("%d decoded as %d", s, got)
		}
	}
}

func TestWAVHeader(t *testing.T) {
	wav := MulawToWAV(make([]byte, 80))
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("bad header: %q", wav[:44])
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != SampleRate {
		t.Fatalf("sample rate: %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 160 {
		t.Fatalf("data size: %d", got)
	}
	if len(wav) != 44+160 {
		t.Fatalf("len: %d", len(wav))
	}
}

func TestFrames(t *testing.T) {
	frames := Frames(make([]byte, 2*FrameBytes+10))
	if len(frames) != 3 || len(frames[2]) != 10 {
		t.Fatalf("frames: %d", len(frames))
	}
	if Frames(nil) != nil {
		t.Fatal("expected nil for empty audio")
	}
	if Duration(8000) != 1000 {
		t.Fatalf("duration: %d", Duration(8000))
	}
}
