// Package segment turns a stream of classified audio frames into speech
// segments.
//
// A [Segmenter] receives one fixed-size frame at a time together with the
// classifier's speech/silence verdict and applies hysteresis: the first
// speech frame opens a segment, trailing silence is buffered for a short
// linger period so word endings are not clipped, and a silence run reaching
// the end threshold closes the segment. Segment audio is written to an
// output ring; every [SpeechEnd] event carries exactly the number of samples
// that were written for that segment, so the consumer can pop them without
// further bookkeeping.
package segment

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/audio/ring"
)

// Default thresholds.
const (
	DefaultEndSilence = 240 * time.Millisecond
	DefaultLinger     = 90 * time.Millisecond
	DefaultMaxSegment = 30 * time.Second
)

// Kind identifies an activity event.
type Kind int

const (
	// SpeechStart is emitted for the frame that opens a segment.
	SpeechStart Kind = iota + 1
	// SpeechEnd is emitted when a segment closes. Event.Samples holds the
	// number of samples buffered for it.
	SpeechEnd
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case SpeechStart:
		return "speech_start"
	case SpeechEnd:
		return "speech_end"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is one activity transition.
type Event struct {
	Kind    Kind
	Samples int
}

// Config holds the segmenter thresholds. Zero durations select the defaults,
// except MaxSegment where zero disables the limit.
type Config struct {
	// FrameSize is the number of samples per frame. Defaults to audio.VADFrame.
	FrameSize int

	// SampleRate of the frames. Defaults to audio.TargetSampleRate.
	SampleRate int

	// EndSilence is the silence run that closes a segment.
	EndSilence time.Duration

	// Linger is the silence run after the last speech frame that is still
	// buffered. It must not exceed EndSilence. Zero selects DefaultLinger,
	// capped at EndSilence.
	Linger time.Duration

	// MaxSegment force-closes a segment once it holds this much audio.
	MaxSegment time.Duration
}

// State is a snapshot of the segment in progress. LastSpeechFrame and
// Samples are only meaningful while Active is true.
type State struct {
	Active          bool
	StartFrame      uint64
	LastSpeechFrame uint64
	Samples         int
}

// Segmenter is the per-session speech/silence state machine. It is not safe
// for concurrent use; the processing goroutine owns it.
type Segmenter struct {
	out *ring.Buffer[int16]

	frameSize    int
	endFrames    uint64
	lingerFrames uint64
	maxSamples   int

	// frame is the index of the most recently pushed frame.
	frame   uint64
	started bool
	st      State

	dropped uint64
}

// FramesFor converts a duration to a whole number of frames, rounding up and
// never returning less than one.
func FramesFor(d time.Duration, frameSize, sampleRate int) int {
	samples := int64(d) * int64(sampleRate)
	perFrame := int64(frameSize) * int64(time.Second)
	n := int((samples + perFrame - 1) / perFrame)
	return max(n, 1)
}

// New creates a segmenter that buffers segment audio into out.
func New(out *ring.Buffer[int16], cfg Config) (*Segmenter, error) {
	if out == nil {
		return nil, errors.New("segment: output ring is nil")
	}
	if cfg.FrameSize == 0 {
		cfg.FrameSize = audio.VADFrame
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.TargetSampleRate
	}
	if cfg.EndSilence == 0 {
		cfg.EndSilence = DefaultEndSilence
	}
	if cfg.Linger == 0 {
		cfg.Linger = min(DefaultLinger, cfg.EndSilence)
	}

	var errs []error
	if cfg.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("frame size must be positive, got %d", cfg.FrameSize))
	}
	if cfg.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate))
	}
	if cfg.EndSilence < 0 || cfg.Linger < 0 || cfg.MaxSegment < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if cfg.Linger > cfg.EndSilence {
		errs = append(errs, fmt.Errorf("linger %s exceeds end silence %s", cfg.Linger, cfg.EndSilence))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("segment: invalid config: %w", err)
	}

	s := &Segmenter{
		out:          out,
		frameSize:    cfg.FrameSize,
		endFrames:    uint64(FramesFor(cfg.EndSilence, cfg.FrameSize, cfg.SampleRate)),
		lingerFrames: uint64(FramesFor(cfg.Linger, cfg.FrameSize, cfg.SampleRate)),
	}
	if cfg.MaxSegment > 0 {
		s.maxSamples = audio.SamplesFor(cfg.MaxSegment, cfg.SampleRate)
	}
	return s, nil
}

// EndFrames returns the silence run, in frames, that closes a segment.
func (s *Segmenter) EndFrames() int { return int(s.endFrames) }

// LingerFrames returns the silence run, in frames, that is still buffered.
func (s *Segmenter) LingerFrames() int { return int(s.lingerFrames) }

// State returns a snapshot of the current segment.
func (s *Segmenter) State() State { return s.st }

// Dropped returns the number of segment samples lost to a full output ring.
func (s *Segmenter) Dropped() uint64 { return s.dropped }

// Push feeds one classified frame and returns the resulting event, if any.
// At most one event is produced per frame.
func (s *Segmenter) Push(frame []int16, speech bool) (Event, bool) {
	if s.started {
		s.frame++
	}
	s.started = true

	if !s.st.Active {
		if !speech {
			return Event{}, false
		}
		s.st = State{
			Active:          true,
			StartFrame:      s.frame,
			LastSpeechFrame: s.frame,
		}
		s.buffer(frame)
		return Event{Kind: SpeechStart}, true
	}

	if speech {
		s.st.LastSpeechFrame = s.frame
	}
	silence := s.frame - s.st.LastSpeechFrame

	if silence >= s.endFrames {
		return s.end(), true
	}
	if silence <= s.lingerFrames {
		s.buffer(frame)
	}
	if s.maxSamples > 0 && s.st.Samples >= s.maxSamples {
		slog.Debug("segment: maximum segment length reached", "samples", s.st.Samples)
		return s.end(), true
	}
	return Event{}, false
}

func (s *Segmenter) end() Event {
	ev := Event{Kind: SpeechEnd, Samples: s.st.Samples}
	s.st = State{}
	return ev
}

// buffer writes frame to the output ring and accounts for what fit.
func (s *Segmenter) buffer(frame []int16) {
	n := s.out.Push(frame)
	s.st.Samples += n
	if lost := len(frame) - n; lost > 0 {
		s.dropped += uint64(lost)
		slog.Warn("segment: output ring full, dropping audio",
			"dropped", lost,
			"buffered", s.st.Samples,
		)
	}
}
