package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/audio/ring"
)

// Driver connects one input stream to a ring buffer.
//
// The consumer publishes how many interleaved samples its next block needs
// with SetRequired, parks on Wake until at least that many are buffered and
// then pops them from Ring. Fatal stream errors arrive on Errors.
type Driver struct {
	host Host
	dev  DeviceInfo
	cfg  audio.StreamConfig

	ring     *ring.Buffer[float32]
	required atomic.Int64
	wake     chan struct{}
	errs     chan error

	mu      sync.Mutex
	stream  Stream
	started bool
}

// NewDriver prepares a driver for dev with a ring of ringCap interleaved
// samples. No stream is opened until Start.
func NewDriver(host Host, dev DeviceInfo, cfg audio.StreamConfig, ringCap int) (*Driver, error) {
	if host == nil {
		return nil, errors.New("capture: host is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	rb, err := ring.New[float32](ringCap)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return &Driver{
		host: host,
		dev:  dev,
		cfg:  cfg,
		ring: rb,
		wake: make(chan struct{}, 1),
		errs: make(chan error, 1),
	}, nil
}

// Config returns the stream configuration.
func (d *Driver) Config() audio.StreamConfig { return d.cfg }

// Device returns the device the driver captures from.
func (d *Driver) Device() DeviceInfo { return d.dev }

// Ring returns the buffer the callback fills.
func (d *Driver) Ring() *ring.Buffer[float32] { return d.ring }

// Wake is signalled when at least the required number of samples is
// buffered. Signals coalesce; a receiver must re-check the ring.
func (d *Driver) Wake() <-chan struct{} { return d.wake }

// Errors carries the first fatal stream error.
func (d *Driver) Errors() <-chan error { return d.errs }

// SetRequired publishes the number of interleaved samples the consumer
// needs before it should be woken.
func (d *Driver) SetRequired(n int) { d.required.Store(int64(n)) }

// Start opens and starts the stream.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("capture: driver already started")
	}

	s, err := d.host.OpenInput(d.dev, d.cfg, Callbacks{Data: d.onData, Error: d.onError})
	if err != nil {
		return fmt.Errorf("capture: open %q: %w", d.dev.Name, err)
	}
	if err := s.Start(); err != nil {
		_ = s.Close()
		return fmt.Errorf("capture: start %q: %w", d.dev.Name, err)
	}
	d.stream = s
	d.started = true
	slog.Info("capture stream started", "device", d.dev.Name, "format", d.cfg.String())
	return nil
}

// Run blocks until ctx is cancelled, then stops and closes the stream. Stop
// returns only once the host has acknowledged the pause, so no callback
// runs after Run returns.
func (d *Driver) Run(ctx context.Context) error {
	<-ctx.Done()
	return d.shutdown()
}

func (d *Driver) shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	var errs []error
	if err := d.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop: %w", err))
	}
	if err := d.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	d.stream = nil
	slog.Info("capture stream stopped", "device", d.dev.Name, "dropped", d.ring.Dropped())
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return nil
}

// onData runs on the audio thread.
func (d *Driver) onData(samples []float32) {
	d.ring.Push(samples)
	if int64(d.ring.Len()) >= d.required.Load() {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
}

// onError runs on the audio thread.
func (d *Driver) onError(err error) {
	select {
	case d.errs <- err:
	default:
	}
	// Wake the consumer so it notices the error promptly.
	select {
	case d.wake <- struct{}{}:
	default:
	}
}
