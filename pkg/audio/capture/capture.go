// Package capture owns the platform audio input stream.
//
// A [Host] enumerates input devices and opens streams on them; the malgo
// sub-package provides the miniaudio-backed implementation and the mock
// sub-package a scripted one for tests. [FindDevice] and [SelectConfig]
// negotiate the session's [audio.StreamConfig] from the reported
// capabilities.
//
// A [Driver] wraps one stream. Its callback runs on the host's real-time
// audio thread and does exactly three things: push the interleaved samples
// into a ring buffer, wake the consumer when enough samples for its next
// block are buffered, and forward fatal stream errors to a single-slot
// channel. It never blocks and never allocates.
package capture

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/murmur/pkg/audio"
)

var (
	// ErrDeviceNotFound is returned when no input device matches the
	// requested name.
	ErrDeviceNotFound = errors.New("capture: input device not found")

	// ErrNoUsableConfig is returned when a device supports no mono or
	// stereo format.
	ErrNoUsableConfig = errors.New("capture: no usable stream configuration")

	// ErrStreamStopped is reported when the host stops a stream that was not
	// asked to stop, e.g. because the device was unplugged.
	ErrStreamStopped = errors.New("capture: stream stopped unexpectedly")
)

// TargetBuffer is the device buffer duration SelectConfig aims for.
const TargetBuffer = 30 * time.Millisecond

// Format is one supported sample rate and channel count combination.
type Format struct {
	SampleRate int
	Channels   int
}

// DeviceInfo describes an input device and its capabilities.
type DeviceInfo struct {
	// ID is an opaque host-specific identifier.
	ID string

	// Name is the human-readable device name used for selection.
	Name string

	// Default marks the system's default input device.
	Default bool

	// Formats lists the supported rate/channel combinations.
	Formats []Format

	// MinBufferFrames and MaxBufferFrames bound the device buffer size in
	// frames. Zero means unbounded.
	MinBufferFrames int
	MaxBufferFrames int

	// BufferGranularity is the step between allowed buffer sizes, in frames.
	// Zero or one allows any size.
	BufferGranularity int
}

// Callbacks are invoked by a Stream on the host's audio thread.
type Callbacks struct {
	// Data receives interleaved float32 samples. The slice is only valid
	// for the duration of the call.
	Data func(samples []float32)

	// Error reports a fatal stream failure. It may be called at most once.
	Error func(err error)
}

// Stream is an open input stream.
type Stream interface {
	// Start begins delivering callbacks.
	Start() error

	// Stop halts the stream. When it returns no further callbacks run.
	Stop() error

	// Close releases the stream. Calling Close on a running stream stops it
	// first.
	Close() error
}

// Host is a platform audio subsystem.
type Host interface {
	// InputDevices lists the available input devices.
	InputDevices() ([]DeviceInfo, error)

	// OpenInput opens dev with the given configuration. The stream is
	// created stopped.
	OpenInput(dev DeviceInfo, cfg audio.StreamConfig, cb Callbacks) (Stream, error)
}

// FindDevice returns the device named name, or the default device when name
// is empty. If no device is marked default the first one is used.
func FindDevice(devs []DeviceInfo, name string) (DeviceInfo, error) {
	if name == "" {
		for _, d := range devs {
			if d.Default {
				return d, nil
			}
		}
		if len(devs) > 0 {
			return devs[0], nil
		}
		return DeviceInfo{}, fmt.Errorf("%w: no input devices available", ErrDeviceNotFound)
	}
	for _, d := range devs {
		if d.Name == name {
			return d, nil
		}
	}
	return DeviceInfo{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}

// SelectConfig picks the stream configuration for dev. The target rate is
// preferred, mono over stereo; otherwise the nearest supported rate is used
// and left to the rate converter. The buffer size approximates
// [TargetBuffer], quantised to the device granularity and clamped to its
// range.
func SelectConfig(dev DeviceInfo, targetRate int) (audio.StreamConfig, error) {
	best := Format{}
	bestDist := math.MaxInt
	for _, f := range dev.Formats {
		if f.SampleRate <= 0 || (f.Channels != 1 && f.Channels != 2) {
			continue
		}
		dist := abs(f.SampleRate - targetRate)
		switch {
		case dist < bestDist:
		case dist > bestDist:
			continue
		// Equal distance: mono first, then the higher rate so conversion
		// only ever downsamples.
		case f.Channels < best.Channels:
		case f.Channels == best.Channels && f.SampleRate > best.SampleRate:
		default:
			continue
		}
		best, bestDist = f, dist
	}
	if best.SampleRate == 0 {
		return audio.StreamConfig{}, fmt.Errorf("%w: device %q", ErrNoUsableConfig, dev.Name)
	}

	return audio.StreamConfig{
		SampleRate:   best.SampleRate,
		Channels:     best.Channels,
		FrameQuantum: bufferFrames(dev, best.SampleRate),
	}, nil
}

// bufferFrames returns the device buffer size closest to TargetBuffer.
func bufferFrames(dev DeviceInfo, rate int) int {
	n := audio.SamplesFor(TargetBuffer, rate)
	if g := dev.BufferGranularity; g > 1 {
		n = max((n+g/2)/g*g, g)
	}
	if dev.MinBufferFrames > 0 && n < dev.MinBufferFrames {
		n = dev.MinBufferFrames
	}
	if dev.MaxBufferFrames > 0 && n > dev.MaxBufferFrames {
		n = dev.MaxBufferFrames
	}
	return max(n, 1)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
