package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/murmur/pkg/provider/stt/whisper"
)

// inferenceRequest captures the multipart fields of one /inference call.
type inferenceRequest struct {
	fields  map[string]string
	samples int
	rate    uint32
}

// newMockServer creates a test server that responds to POST /inference with
// a JSON body containing responseText and records the last request.
func newMockServer(t *testing.T, responseText string, calls *atomic.Int32, last *atomic.Pointer[inferenceRequest]) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 22); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		hdr := make([]byte, 44)
		if _, err := io.ReadFull(f, hdr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		req := &inferenceRequest{
			fields:  map[string]string{},
			samples: int(binary.LittleEndian.Uint32(hdr[40:44])) / 2,
			rate:    binary.LittleEndian.Uint32(hdr[24:28]),
		}
		for k, v := range r.MultipartForm.Value {
			req.fields[k] = v[0]
		}
		if last != nil {
			last.Store(req)
		}
		if calls != nil {
			calls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_PostsWAVAndReturnsText(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	var last atomic.Pointer[inferenceRequest]
	srv := newMockServer(t, "hello there", &calls, &last)

	tr, err := whisper.New(srv.URL, whisper.WithLanguage("de"), whisper.WithModel("small"), whisper.WithTranslate(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := tr.Transcribe(context.Background(), make([]int16, 1600))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello there" {
		t.Errorf("text = %q, want %q", text, "hello there")
	}
	if calls.Load() != 1 {
		t.Fatalf("server calls = %d, want 1", calls.Load())
	}

	req := last.Load()
	if req.samples != 1600 || req.rate != 16000 {
		t.Errorf("uploaded %d samples at %d Hz, want 1600 at 16000", req.samples, req.rate)
	}
	for k, want := range map[string]string{"language": "de", "model": "small", "translate": "true"} {
		if got := req.fields[k]; got != want {
			t.Errorf("field %s = %q, want %q", k, got, want)
		}
	}
}

func TestTranscribe_EmptyInputSkipsServer(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newMockServer(t, "unused", &calls, nil)
	tr, _ := whisper.New(srv.URL)

	text, err := tr.Transcribe(context.Background(), nil)
	if err != nil || text != "" {
		t.Errorf("Transcribe(nil) = (%q, %v), want empty", text, err)
	}
	if calls.Load() != 0 {
		t.Errorf("server calls = %d, want 0", calls.Load())
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr, _ := whisper.New(srv.URL)
	if _, err := tr.Transcribe(context.Background(), make([]int16, 480)); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestTranscribe_InvalidJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	tr, _ := whisper.New(srv.URL)
	if _, err := tr.Transcribe(context.Background(), make([]int16, 480)); err == nil {
		t.Fatal("expected error for malformed response")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, "x", nil, nil)
	tr, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Transcribe(ctx, make([]int16, 480)); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
