// Package audio defines the stream format types and the sample conversion
// helpers shared by the murmur capture pipeline.
//
// Capture devices deliver interleaved float32 frames at their native rate.
// The pipeline downmixes them to mono ([Downmix]), converts them to the fixed
// [TargetSampleRate] (see package resample) in blocks of exactly [VADFrame]
// samples and finally maps them onto 16-bit PCM ([ToPCM16]) for the voice
// activity classifier and the transcriber.
//
// Device-specific adapters live in sub-packages (audio/capture,
// audio/capture/malgo) so that this package stays free of cgo.
package audio

import (
	"fmt"
	"time"
)

const (
	// TargetSampleRate is the fixed rate of everything downstream of the rate
	// converter: classifier frames, segment audio and transcriber input.
	TargetSampleRate = 16000

	// VADFrame is the number of target-rate samples classified at a time
	// (30 ms at 16 kHz).
	VADFrame = 480
)

// StreamConfig is the negotiated format of one capture session. It is built
// once from the device's reported capabilities and never changes while the
// session is live.
type StreamConfig struct {
	// SampleRate is the device's native rate in Hz.
	SampleRate int

	// Channels is 1 (mono) or 2 (interleaved stereo).
	Channels int

	// FrameQuantum is the device buffer size in frames (samples per channel)
	// delivered by one callback invocation.
	FrameQuantum int
}

// Validate reports whether the config can drive the pipeline.
func (c StreamConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("audio: %w: %d", ErrUnsupportedChannels, c.Channels)
	}
	if c.FrameQuantum <= 0 {
		return fmt.Errorf("audio: frame quantum must be positive, got %d", c.FrameQuantum)
	}
	return nil
}

// QuantumDuration returns the wall-clock length of one device buffer.
func (c StreamConfig) QuantumDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameQuantum) * time.Second / time.Duration(c.SampleRate)
}

// String returns a human-readable description, e.g. "48000Hz stereo/1440".
func (c StreamConfig) String() string {
	return fmt.Sprintf("%s/%d", formatString(c.SampleRate, c.Channels), c.FrameQuantum)
}

// SamplesFor returns the number of samples covering d at rate.
func SamplesFor(d time.Duration, rate int) int {
	return int(d * time.Duration(rate) / time.Second)
}

// DurationOf returns the wall-clock length of n samples at rate.
func DurationOf(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
