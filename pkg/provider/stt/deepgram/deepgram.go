// Package deepgram provides a Deepgram-backed transcriber using the Deepgram
// streaming WebSocket API. Each speech segment is sent over its own
// connection and the final results are joined into one transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// chunkSamples is the number of samples written per binary message
	// (100 ms at 16 kHz).
	chunkSamples = 1600
)

// Compile-time assertions.
var (
	_ stt.Transcriber   = (*Transcriber)(nil)
	_ stt.KeywordSetter = (*Transcriber)(nil)
)

// Option is a functional option for configuring the Deepgram Transcriber.
type Option func(*Transcriber)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(t *Transcriber) {
		t.language = language
	}
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(t *Transcriber) {
		t.endpoint = endpoint
	}
}

// WithKeywords sets the initial keyword boosts.
func WithKeywords(keywords []stt.KeywordBoost) Option {
	return func(t *Transcriber) {
		t.keywords = keywords
	}
}

// Transcriber implements stt.Transcriber backed by the Deepgram streaming
// API. It is safe for concurrent use.
type Transcriber struct {
	apiKey   string
	model    string
	language string
	endpoint string

	kwMu     sync.RWMutex
	keywords []stt.KeywordBoost
}

// New creates a new Deepgram Transcriber. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	t := &Transcriber{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// SetKeywords replaces the keyword boosts used for subsequent segments.
func (t *Transcriber) SetKeywords(keywords []stt.KeywordBoost) error {
	t.kwMu.Lock()
	t.keywords = append([]stt.KeywordBoost(nil), keywords...)
	t.kwMu.Unlock()
	return nil
}

// Transcribe streams pcm to Deepgram, signals end of stream and collects
// every final result until the server closes the connection.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []int16) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	wsURL, err := t.buildURL()
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+t.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	for off := 0; off < len(pcm); off += chunkSamples {
		chunk := pcm[off:min(off+chunkSamples, len(pcm))]
		if err := conn.Write(ctx, websocket.MessageBinary, audio.PCM16ToBytes(chunk)); err != nil {
			return "", fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	// Ask Deepgram to flush pending audio and close the stream.
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return "", fmt.Errorf("deepgram: close stream: %w", err)
	}

	var parts []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			if ctx.Err() != nil {
				return "", fmt.Errorf("deepgram: %w", ctx.Err())
			}
			// Deepgram closes with 1000 after the final Metadata message; any
			// other close after results have arrived still yields them.
			if len(parts) > 0 {
				break
			}
			return "", fmt.Errorf("deepgram: read: %w", err)
		}
		text, final, ok := parseDeepgramResponse(msg)
		if ok && final && text != "" {
			parts = append(parts, text)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "segment done")
	return strings.Join(parts, " "), nil
}

// buildURL constructs the Deepgram streaming endpoint URL.
func (t *Transcriber) buildURL() (string, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", t.model)
	q.Set("language", t.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(audio.TargetSampleRate))
	q.Set("channels", "1")

	t.kwMu.RLock()
	for _, kw := range t.keywords {
		// Deepgram keyword format: word:boost (e.g., "Eldrinax:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}
	t.kwMu.RUnlock()

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramResponse extracts the best alternative from a Results
// message. ok is false for any other message type.
func parseDeepgramResponse(data []byte) (text string, final, ok bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return "", false, false
	}
	return strings.TrimSpace(resp.Channel.Alternatives[0].Transcript), resp.IsFinal, true
}
