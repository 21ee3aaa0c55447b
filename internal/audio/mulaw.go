package audio

// Telephony legs carry G.711 μ-law at 8 kHz mono, one byte per sample.
const (
	SampleRate    = 8000
	FrameDuration = 20 // milliseconds per media frame
	FrameBytes    = SampleRate * FrameDuration / 1000
)

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// DecodeMulaw converts μ-law bytes to 16-bit little-endian PCM.
func DecodeMulaw(in []byte) []byte {
	out := make([]byte, len(in)*2)
	for i, b := range in {
		s := mulawToLinear(b)
		out[2*i] = byte(s)
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// EncodeMulaw converts 16-bit little-endian PCM to μ-law. A trailing odd byte is ignored.
func EncodeMulaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		s := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = linearToMulaw(s)
	}
	return out
}

func mulawToLinear(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F
	sample := ((int32(mantissa) << 3) + mulawBias) << exponent
	sample -= mulawBias
	if sign != 0 {
		return int16(-sample)
	}
	return int16(sample)
}

func linearToMulaw(s int16) byte {
	sample := int32(s)
	sign := byte(0)
	if sample < 0 {
		sample = -sample
		sign = 0x80
	}
	if sample > mulawClip {
		sample = mulawClip
	}
	sample += mulawBias
	exponent := byte(7)
	for mask := int32(0x4000); sample&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((sample >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

// Duration returns the playback length in milliseconds of n μ-law bytes.
func Duration(n int) int {
	return n * 1000 / SampleRate
}

// Frames splits audio into transport-sized frames. The last frame may be short.
func Frames(audio []byte) [][]byte {
	if len(audio) == 0 {
		return nil
	}
	frames := make([][]byte, 0, (len(audio)+FrameBytes-1)/FrameBytes)
	for start := 0; start < len(audio); start += FrameBytes {
		end := start + FrameBytes
		if end > len(audio) {
			end = len(audio)
		}
		frames = append(frames, audio[start:end])
	}
	return frames
}
