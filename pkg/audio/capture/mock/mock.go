// Package mock provides a scripted capture.Host for tests.
//
// A Stream plays its Script from a dedicated goroutine once started, the way
// a platform audio thread would, and can inject a stream failure. Tests may
// also push samples synchronously with Feed.
//
// Example:
//
//	host := &mock.Host{
//	    Devices: []capture.DeviceInfo{{Name: "mic", Default: true,
//	        Formats: []capture.Format{{SampleRate: 16000, Channels: 1}}}},
//	    Script: chunks,
//	}
package mock

import (
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/audio/capture"
)

// OpenInputCall records a single invocation of Host.OpenInput.
type OpenInputCall struct {
	Device capture.DeviceInfo
	Config audio.StreamConfig
}

// Host is a mock implementation of capture.Host.
type Host struct {
	mu sync.Mutex

	// Devices is returned by InputDevices.
	Devices []capture.DeviceInfo

	// InputDevicesErr, if non-nil, is returned by InputDevices.
	InputDevicesErr error

	// OpenErr, if non-nil, is returned by OpenInput.
	OpenErr error

	// StartErr, if non-nil, is returned by Stream.Start.
	StartErr error

	// Script is played by every opened stream, one chunk per callback.
	Script [][]float32

	// Pace is the delay between scripted chunks.
	Pace time.Duration

	// FailAfter, if non-nil, is reported through the error callback once the
	// script has been played.
	FailAfter error

	// OpenInputCalls records every call to OpenInput in order.
	OpenInputCalls []OpenInputCall

	// Streams holds every stream opened, in order.
	Streams []*Stream
}

// InputDevices returns Devices, InputDevicesErr.
func (h *Host) InputDevices() ([]capture.DeviceInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.InputDevicesErr != nil {
		return nil, h.InputDevicesErr
	}
	return append([]capture.DeviceInfo(nil), h.Devices...), nil
}

// OpenInput records the call and returns a new Stream.
func (h *Host) OpenInput(dev capture.DeviceInfo, cfg audio.StreamConfig, cb capture.Callbacks) (capture.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.OpenInputCalls = append(h.OpenInputCalls, OpenInputCall{Device: dev, Config: cfg})
	if h.OpenErr != nil {
		return nil, h.OpenErr
	}
	s := &Stream{
		cb:        cb,
		script:    h.Script,
		pace:      h.Pace,
		failAfter: h.FailAfter,
		startErr:  h.StartErr,
	}
	h.Streams = append(h.Streams, s)
	return s, nil
}

// LastStream returns the most recently opened stream, or nil.
func (h *Host) LastStream() *Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Streams) == 0 {
		return nil
	}
	return h.Streams[len(h.Streams)-1]
}

// Ensure Host implements capture.Host at compile time.
var _ capture.Host = (*Host)(nil)

// Stream is a mock capture.Stream.
type Stream struct {
	cb        capture.Callbacks
	script    [][]float32
	pace      time.Duration
	failAfter error
	startErr  error

	// cbMu serialises callbacks like a single audio thread would.
	cbMu sync.Mutex

	mu       sync.Mutex
	running  bool
	closed   bool
	stop     chan struct{}
	done     chan struct{}
	starts   int
	stops    int
	closes   int
	finished chan struct{}
	finOnce  sync.Once
}

// Start launches the playback goroutine.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.startErr != nil {
		return s.startErr
	}
	if s.closed {
		return errors.New("mock stream: closed")
	}
	if s.running {
		return nil
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	if s.finished == nil {
		s.finished = make(chan struct{})
	}
	go s.play(s.stop, s.done, s.finished)
	return nil
}

// Stop halts playback and waits for the playback goroutine to exit.
func (s *Stream) Stop() error {
	s.mu.Lock()
	s.stops++
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	return nil
}

// Close stops the stream and marks it closed.
func (s *Stream) Close() error {
	_ = s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.closed = true
	return nil
}

// Feed delivers samples through the data callback synchronously.
func (s *Stream) Feed(samples []float32) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.cb.Data != nil {
		s.cb.Data(samples)
	}
}

// Fail reports err through the error callback.
func (s *Stream) Fail(err error) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.cb.Error != nil {
		s.cb.Error(err)
	}
}

// Finished is closed once the script has been played completely. It is nil
// until the stream has been started.
func (s *Stream) Finished() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Counts returns how often Start, Stop and Close were called.
func (s *Stream) Counts() (starts, stops, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops, s.closes
}

// Running reports whether playback is active.
func (s *Stream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Stream) play(stop, done, finished chan struct{}) {
	defer close(done)
	for _, chunk := range s.script {
		select {
		case <-stop:
			return
		default:
		}
		s.Feed(chunk)
		if s.pace > 0 {
			select {
			case <-stop:
				return
			case <-time.After(s.pace):
			}
		}
	}
	if s.failAfter != nil {
		s.Fail(s.failAfter)
	}
	s.finOnce.Do(func() { close(finished) })
	<-stop
}

// Ensure Stream implements capture.Stream at compile time.
var _ capture.Stream = (*Stream)(nil)
