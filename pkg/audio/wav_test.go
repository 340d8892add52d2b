package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/MrWong99/murmur/pkg/audio"
)

func TestEncodeWAV_Header(t *testing.T) {
	t.Parallel()
	samples := []int16{1, -2, 3}
	wav := audio.EncodeWAV(samples, 16000)

	if len(wav) != 44+len(samples)*2 {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(samples)*2)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("bad chunk ids: %q %q %q", wav[0:4], wav[8:12], wav[36:40])
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Errorf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 6 {
		t.Errorf("data size = %d, want 6", got)
	}
	pcm := audio.BytesToPCM16(wav[44:])
	for i := range samples {
		if pcm[i] != samples[i] {
			t.Errorf("sample %d = %d, want %d", i, pcm[i], samples[i])
		}
	}
}
