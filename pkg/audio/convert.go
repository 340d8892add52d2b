package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrUnsupportedChannels is returned for channel counts other than 1 or 2.
var ErrUnsupportedChannels = errors.New("unsupported channel count")

// Downmix collapses interleaved frames in src to mono and writes them into
// dst, which is grown if its capacity is too small. Mono input is copied
// unchanged; stereo input is averaged pairwise and yields len(src)/2 samples.
// Any other channel count is rejected.
func Downmix(dst, src []float32, channels int) ([]float32, error) {
	switch channels {
	case 1:
		dst = grow(dst, len(src))
		copy(dst, src)
		return dst, nil
	case 2:
		frames := len(src) / 2
		dst = grow(dst, frames)
		for i := range frames {
			dst[i] = (src[2*i] + src[2*i+1]) / 2
		}
		return dst, nil
	default:
		return dst[:0], fmt.Errorf("audio: downmix: %w: %d", ErrUnsupportedChannels, channels)
	}
}

// ToPCM16 maps float samples in [-1, 1] onto signed 16-bit PCM using a
// full-scale linear mapping (sample * MaxInt16, truncated). Out-of-range input
// is clamped first so it cannot wrap. dst must be at least len(src) long.
func ToPCM16(dst []int16, src []float32) {
	for i, s := range src {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		dst[i] = int16(s * math.MaxInt16)
	}
}

// PCM16ToFloat32 converts 16-bit PCM to float32 samples normalised to
// [-1.0, 1.0).
func PCM16ToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// PCM16ToBytes encodes samples as little-endian 16-bit PCM.
func PCM16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToPCM16 decodes little-endian 16-bit PCM. A trailing odd byte is
// ignored.
func BytesToPCM16(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// DecodeFloat32LE decodes little-endian IEEE-754 float32 samples from src
// into dst without allocating. It returns the number of samples written,
// bounded by len(dst).
func DecodeFloat32LE(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/4)
	for i := range n {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return n
}

// RMS returns the root-mean-square level of 16-bit samples, in PCM units
// (0–32767). Returns 0 for an empty slice.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// grow returns s resliced to n, reallocating only when cap(s) < n.
func grow(s []float32, n int) []float32 {
	if cap(s) < n {
		return make([]float32, n)
	}
	return s[:n]
}
