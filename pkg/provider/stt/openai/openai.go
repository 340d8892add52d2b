// Package openai provides a transcriber backed by the OpenAI audio API
// (whisper-1 and the gpt-4o transcription models).
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = string(oai.AudioModelWhisper1)

// Ensure Transcriber implements the stt interfaces.
var (
	_ stt.Transcriber   = (*Transcriber)(nil)
	_ stt.KeywordSetter = (*Transcriber)(nil)
)

// Transcriber implements stt.Transcriber using the OpenAI API. Translation
// requests go to the translations endpoint, which always produces English.
type Transcriber struct {
	client    oai.Client
	model     string
	language  string
	translate bool

	prompt atomicString
}

// config holds optional configuration for the transcriber.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	language     string
	translate    bool
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithLanguage sets the ISO-639-1 input language. Empty or "auto" lets the
// API detect it.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTranslate routes segments to the translations endpoint.
func WithTranslate(translate bool) Option {
	return func(c *config) {
		c.translate = translate
	}
}

// New constructs a new OpenAI Transcriber.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.translate && model != DefaultModel {
		return nil, fmt.Errorf("openai stt: translation requires %s, got %s: %w", DefaultModel, model, stt.ErrNotSupported)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	lang := cfg.language
	if strings.EqualFold(lang, "auto") {
		lang = ""
	}

	return &Transcriber{
		client:    oai.NewClient(reqOpts...),
		model:     model,
		language:  lang,
		translate: cfg.translate,
	}, nil
}

// SetKeywords turns the keywords into a prompt, which the API uses as
// spelling guidance for subsequent segments.
func (t *Transcriber) SetKeywords(keywords []stt.KeywordBoost) error {
	words := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		words = append(words, kw.Keyword)
	}
	t.prompt.Store(strings.Join(words, ", "))
	return nil
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []int16) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	file := oai.File(bytes.NewReader(audio.EncodeWAV(pcm, audio.TargetSampleRate)), "segment.wav", "audio/wav")
	prompt := t.prompt.Load()

	if t.translate {
		params := oai.AudioTranslationNewParams{
			File:  file,
			Model: oai.AudioModel(t.model),
		}
		if prompt != "" {
			params.Prompt = oai.String(prompt)
		}
		resp, err := t.client.Audio.Translations.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("openai stt: translate: %w", err)
		}
		return strings.TrimSpace(resp.Text), nil
	}

	params := oai.AudioTranscriptionNewParams{
		File:  file,
		Model: oai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = oai.String(t.language)
	}
	if prompt != "" {
		params.Prompt = oai.String(prompt)
	}
	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// ModelID returns the configured model.
func (t *Transcriber) ModelID() string {
	return t.model
}
