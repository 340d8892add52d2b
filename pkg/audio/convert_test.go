package audio_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/murmur/pkg/audio"
)

func TestDownmix_MonoPassthrough(t *testing.T) {
	t.Parallel()
	in := []float32{0.1, -0.2, 0.3}
	got, err := audio.Downmix(nil, in, 1)
	if err != nil {
		t.Fatalf("Downmix: %v", err)
	}
	if len(got) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], in[i])
		}
	}
}

func TestDownmix_StereoAverages(t *testing.T) {
	t.Parallel()
	// Two stereo frames: L=0.5,R=0.25 and L=-1,R=0
	in := []float32{0.5, 0.25, -1, 0}
	got, err := audio.Downmix(make([]float32, 0, 8), in, 2)
	if err != nil {
		t.Fatalf("Downmix: %v", err)
	}
	want := []float32{0.375, -0.5}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDownmix_RejectsOtherChannelCounts(t *testing.T) {
	t.Parallel()
	for _, ch := range []int{0, 3, 6} {
		_, err := audio.Downmix(nil, make([]float32, 12), ch)
		if !errors.Is(err, audio.ErrUnsupportedChannels) {
			t.Errorf("channels=%d: error = %v, want ErrUnsupportedChannels", ch, err)
		}
	}
}

func TestToPCM16_FullScaleTruncated(t *testing.T) {
	t.Parallel()
	in := []float32{0, 1, -1, 0.5, 2, -3}
	got := make([]int16, len(in))
	audio.ToPCM16(got, in)
	want := []int16{0, math.MaxInt16, -math.MaxInt16, 16383, math.MaxInt16, -math.MaxInt16}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPCM16Bytes_RoundTrip(t *testing.T) {
	t.Parallel()
	in := []int16{0, 1, -1, math.MaxInt16, math.MinInt16}
	got := audio.BytesToPCM16(audio.PCM16ToBytes(in))
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], in[i])
		}
	}
}

func TestDecodeFloat32LE(t *testing.T) {
	t.Parallel()
	src := make([]byte, 8)
	bits := math.Float32bits(0.25)
	src[0], src[1], src[2], src[3] = byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24)
	bits = math.Float32bits(-0.5)
	src[4], src[5], src[6], src[7] = byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24)

	dst := make([]float32, 4)
	n := audio.DecodeFloat32LE(dst, src)
	if n != 2 {
		t.Fatalf("decoded %d samples, want 2", n)
	}
	if dst[0] != 0.25 || dst[1] != -0.5 {
		t.Errorf("decoded %v, want [0.25 -0.5]", dst[:2])
	}
}

func TestStreamConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     audio.StreamConfig
		wantErr bool
	}{
		{"mono 16k", audio.StreamConfig{SampleRate: 16000, Channels: 1, FrameQuantum: 480}, false},
		{"stereo 48k", audio.StreamConfig{SampleRate: 48000, Channels: 2, FrameQuantum: 1440}, false},
		{"zero rate", audio.StreamConfig{SampleRate: 0, Channels: 1, FrameQuantum: 480}, true},
		{"six channels", audio.StreamConfig{SampleRate: 48000, Channels: 6, FrameQuantum: 480}, true},
		{"zero quantum", audio.StreamConfig{SampleRate: 48000, Channels: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStreamConfig_QuantumDuration(t *testing.T) {
	t.Parallel()
	cfg := audio.StreamConfig{SampleRate: 48000, Channels: 2, FrameQuantum: 1440}
	if got := cfg.QuantumDuration(); got != 30*time.Millisecond {
		t.Errorf("QuantumDuration = %v, want 30ms", got)
	}
	if got := cfg.String(); got != "48000Hz stereo/1440" {
		t.Errorf("String = %q", got)
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := audio.RMS([]int16{1000, -1000, 1000, -1000}); got != 1000 {
		t.Errorf("RMS = %v, want 1000", got)
	}
}
