package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/murmur/pkg/provider/stt"
	sttmock "github.com/MrWong99/murmur/pkg/provider/stt/mock"
)

// plainTranscriber has no keyword support.
type plainTranscriber struct{ text string }

func (p plainTranscriber) Transcribe(context.Context, []int16) (string, error) {
	return p.text, nil
}

func TestTranscriberFallback_Transcribe(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Transcriber{TranscribeErr: errors.New("server down")}
	secondary := &sttmock.Transcriber{Default: "hello there"}
	fb := NewTranscriberFallback(primary, "whisper", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	pcm := []int16{1, 2, 3}
	got, err := fb.Transcribe(context.Background(), pcm)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "hello there" {
		t.Errorf("text = %q, want %q", got, "hello there")
	}
	if n := len(primary.Calls()); n != 1 {
		t.Errorf("primary calls = %d, want 1", n)
	}
	calls := secondary.Calls()
	if len(calls) != 1 || len(calls[0].PCM) != len(pcm) {
		t.Errorf("secondary calls = %+v, want one call with %d samples", calls, len(pcm))
	}
}

func TestTranscriberFallback_AllFail(t *testing.T) {
	t.Parallel()
	fb := NewTranscriberFallback(&sttmock.Transcriber{TranscribeErr: errTest}, "a", FallbackConfig{})
	fb.AddFallback("b", &sttmock.Transcriber{TranscribeErr: errTest})

	if _, err := fb.Transcribe(context.Background(), nil); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTranscriberFallback_SetKeywords(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Transcriber{}
	unsupported := &sttmock.Transcriber{SetKeywordsErr: stt.ErrNotSupported}
	fb := NewTranscriberFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("plain", plainTranscriber{})
	fb.AddFallback("unsupported", unsupported)

	kw := []stt.KeywordBoost{{Keyword: "Eldrinax", Boost: 2}}
	if err := fb.SetKeywords(kw); err != nil {
		t.Fatalf("SetKeywords: %v", err)
	}
	if len(primary.Keywords) != 1 || primary.Keywords[0].Keyword != "Eldrinax" {
		t.Errorf("primary keywords = %v", primary.Keywords)
	}

	broken := &sttmock.Transcriber{SetKeywordsErr: errTest}
	fb.AddFallback("broken", broken)
	if err := fb.SetKeywords(kw); !errors.Is(err, errTest) {
		t.Errorf("SetKeywords = %v, want errTest", err)
	}
}
