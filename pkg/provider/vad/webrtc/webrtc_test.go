package webrtc_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/murmur/pkg/provider/vad"
	"github.com/MrWong99/murmur/pkg/provider/vad/webrtc"
)

func TestNew_InvalidMode(t *testing.T) {
	t.Parallel()
	if _, err := webrtc.New(webrtc.WithDefaultMode(4)); err == nil {
		t.Error("expected error for mode 4")
	}
}

func TestNewClassifier_RejectsUnsupportedFrame(t *testing.T) {
	t.Parallel()
	eng, err := webrtc.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := eng.NewClassifier(vad.Config{SampleRate: 16000, FrameSize: 500}); err == nil {
		t.Error("expected error for 500-sample frame")
	}
	if _, err := eng.NewClassifier(vad.Config{SampleRate: 44100, FrameSize: 441}); err == nil {
		t.Error("expected error for 44.1 kHz")
	}
}

func TestPredict_SilenceIsNotSpeech(t *testing.T) {
	t.Parallel()
	eng, err := webrtc.New(webrtc.WithDefaultMode(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c, err := eng.NewClassifier(vad.Config{SampleRate: 16000, FrameSize: 480})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	defer c.Close()

	for range 10 {
		speech, err := c.Predict(make([]int16, 480))
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		if speech {
			t.Fatal("digital silence classified as speech")
		}
	}
	if _, err := c.Predict(make([]int16, 320)); !errors.Is(err, vad.ErrFrameSize) {
		t.Errorf("Predict error = %v, want ErrFrameSize", err)
	}
}
