// Package barge detects a caller talking over assistant playback.
package barge

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// Config holds the thresholds for the barge-in detector.
type Config struct {
	SampleRate      int     // PCM rate fed to the detector
	Threshold       float64 // frame RMS counted as speech
	SmoothFrames    int     // VAD majority window, in 10 ms frames
	FuseWinMs       int     // window over which speech votes must dominate
	HysteresisOffMs int     // silence that resets a building trigger
}

// DefaultTelephony suits 8 kHz narrowband calls.
func DefaultTelephony() Config {
	return Config{
		SampleRate:      8000,
		Threshold:       600,
		SmoothFrames:    4,
		FuseWinMs:       150,
		HysteresisOffMs: 200,
	}
}

// Detector votes per 10 ms frame and fires once per playback when the caller
// keeps talking for most of the fuse window.
type Detector struct {
	cfg Config

	mu       sync.Mutex
	speaking bool
	vad      *energyVAD
	votesOn  *voteWindow
	votesOff *voteWindow
	partial  []byte // carry-over shorter than one frame
}

func NewDetector(cfg Config) *Detector {
	def := DefaultTelephony()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.SmoothFrames <= 0 {
		cfg.SmoothFrames = def.SmoothFrames
	}
	if cfg.FuseWinMs <= 0 {
		cfg.FuseWinMs = def.FuseWinMs
	}
	if cfg.HysteresisOffMs <= 0 {
		cfg.HysteresisOffMs = def.HysteresisOffMs
	}
	return &Detector{
		cfg:      cfg,
		vad:      &energyVAD{threshold: cfg.Threshold, smoothN: cfg.SmoothFrames},
		votesOn:  newVoteWindow(cfg.FuseWinMs),
		votesOff: newVoteWindow(cfg.HysteresisOffMs),
	}
}

// SetSpeaking toggles whether assistant audio is playing. Detection only
// runs while it is.
func (d *Detector) SetSpeaking(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.speaking == on {
		return
	}
	d.speaking = on
	d.votesOn.Reset()
	d.votesOff.Reset()
}

// Feed consumes PCM16LE audio and reports whether the caller barged in.
// After a trigger the detector stays idle until SetSpeaking(true) is called again.
func (d *Detector) Feed(pcm []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	frameBytes := d.cfg.SampleRate / 100 * 2
	buf := append(d.partial, pcm...)
	triggered := false
	off := 0
	for ; off+frameBytes <= len(buf); off += frameBytes {
		if d.onFrame(buf[off : off+frameBytes]) {
			triggered = true
		}
	}
	d.partial = append(d.partial[:0], buf[off:]...)
	return triggered
}

func (d *Detector) onFrame(frame []byte) bool {
	speech := d.vad.isSpeech(frame)
	if !d.speaking {
		return false
	}
	d.votesOn.Push(speech)
	d.votesOff.Push(!speech)
	if d.votesOn.Ratio() >= 2.0/3.0 {
		d.speaking = false
		d.votesOn.Reset()
		d.votesOff.Reset()
		return true
	}
	if d.votesOff.Ratio() >= 2.0/3.0 {
		d.votesOn.Reset()
	}
	return false
}

type energyVAD struct {
	threshold float64
	smoothN   int
	win       []bool
}

func (v *energyVAD) isSpeech(frame []byte) bool {
	n := len(frame) / 2
	if n == 0 {
		return false
	}
	var sum float64
	for i := 0; i < n; i++ {
		f := float64(int16(binary.LittleEndian.Uint16(frame[i*2:])))
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(n))
	v.win = append(v.win, rms >= v.threshold)
	if len(v.win) > v.smoothN {
		v.win = v.win[len(v.win)-v.smoothN:]
	}
	trueCount := 0
	for _, x := range v.win {
		if x {
			trueCount++
		}
	}
	return trueCount*2 >= len(v.win)
}

// voteWindow keeps the most recent votes of a fixed span. Ratio is taken over
// the full span so a partly filled window cannot fire early.
type voteWindow struct {
	size int
	hist []bool
}

func newVoteWindow(ms int) *voteWindow {
	return &voteWindow{size: int(time.Duration(ms)*time.Millisecond/(10*time.Millisecond)) + 1}
}

func (v *voteWindow) Push(b bool) {
	v.hist = append(v.hist, b)
	if len(v.hist) > v.size {
		v.hist = v.hist[len(v.hist)-v.size:]
	}
}

func (v *voteWindow) Ratio() float64 {
	var t int
	for _, b := range v.hist {
		if b {
			t++
		}
	}
	return float64(t) / float64(v.size)
}

func (v *voteWindow) Reset() { v.hist = v.hist[:0] }
