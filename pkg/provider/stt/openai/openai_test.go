package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// fakeAPI records the multipart fields of audio requests and replies with
// a fixed transcript.
type fakeAPI struct {
	mu     sync.Mutex
	paths  []string
	fields []map[string]string
	status int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 22); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fields := map[string]string{}
	for k, v := range r.MultipartForm.Value {
		fields[k] = v[0]
	}
	if fh := r.MultipartForm.File["file"]; len(fh) == 1 {
		fields["filename"] = fh[0].Filename
	}

	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.fields = append(f.fields, fields)
	status := f.status
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"text": "  the quick fox  "})
}

func newTestTranscriber(t *testing.T, api *fakeAPI, opts ...Option) *Transcriber {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	tr, err := New("test-key", "", append([]Option{WithBaseURL(srv.URL + "/v1/")}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_TranslateRequiresWhisper(t *testing.T) {
	_, err := New("key", "gpt-4o-transcribe", WithTranslate(true))
	if !errors.Is(err, stt.ErrNotSupported) {
		t.Errorf("error = %v, want ErrNotSupported", err)
	}
}

func TestModelID_Default(t *testing.T) {
	tr, err := New("key", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr.ModelID() != DefaultModel {
		t.Errorf("ModelID = %q, want %q", tr.ModelID(), DefaultModel)
	}
}

func TestTranscribe_UsesTranscriptionsEndpoint(t *testing.T) {
	api := &fakeAPI{}
	tr := newTestTranscriber(t, api, WithLanguage("de"))
	if err := tr.SetKeywords([]stt.KeywordBoost{{Keyword: "Eldrinax"}, {Keyword: "Zorrath"}}); err != nil {
		t.Fatalf("SetKeywords: %v", err)
	}

	text, err := tr.Transcribe(context.Background(), make([]int16, 1600))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "the quick fox" {
		t.Errorf("text = %q, want %q", text, "the quick fox")
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.paths) != 1 || api.paths[0] != "/v1/audio/transcriptions" {
		t.Fatalf("paths = %v, want [/v1/audio/transcriptions]", api.paths)
	}
	f := api.fields[0]
	for k, want := range map[string]string{
		"model":    "whisper-1",
		"language": "de",
		"prompt":   "Eldrinax, Zorrath",
		"filename": "segment.wav",
	} {
		if f[k] != want {
			t.Errorf("field %s = %q, want %q", k, f[k], want)
		}
	}
}

func TestTranscribe_AutoLanguageOmitted(t *testing.T) {
	api := &fakeAPI{}
	tr := newTestTranscriber(t, api, WithLanguage("auto"))
	if _, err := tr.Transcribe(context.Background(), make([]int16, 480)); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if _, ok := api.fields[0]["language"]; ok {
		t.Errorf("language field sent for auto detection: %q", api.fields[0]["language"])
	}
}

func TestTranscribe_TranslateUsesTranslationsEndpoint(t *testing.T) {
	api := &fakeAPI{}
	tr := newTestTranscriber(t, api, WithTranslate(true))
	if _, err := tr.Transcribe(context.Background(), make([]int16, 480)); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.paths) != 1 || api.paths[0] != "/v1/audio/translations" {
		t.Fatalf("paths = %v, want [/v1/audio/translations]", api.paths)
	}
}

func TestTranscribe_EmptyInputSkipsAPI(t *testing.T) {
	api := &fakeAPI{}
	tr := newTestTranscriber(t, api)
	text, err := tr.Transcribe(context.Background(), nil)
	if err != nil || text != "" {
		t.Errorf("Transcribe(nil) = (%q, %v), want empty", text, err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.paths) != 0 {
		t.Errorf("API called %d times, want 0", len(api.paths))
	}
}

func TestTranscribe_APIError(t *testing.T) {
	api := &fakeAPI{status: http.StatusBadRequest}
	tr := newTestTranscriber(t, api)
	if _, err := tr.Transcribe(context.Background(), make([]int16, 480)); err == nil {
		t.Fatal("expected error for HTTP 400")
	}
}
