package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper-native", "whisper", "openai", "deepgram"},
	"vad": {"webrtc", "energy"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Capture.BufferMS < 0 {
		errs = append(errs, fmt.Errorf("capture.buffer_ms %d must not be negative", cfg.Capture.BufferMS))
	}

	seg := cfg.Segmenter
	if seg.EndSilenceMS <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.end_silence_ms %d must be positive", seg.EndSilenceMS))
	}
	if seg.LingerMS < 0 {
		errs = append(errs, fmt.Errorf("segmenter.linger_ms %d must not be negative", seg.LingerMS))
	}
	if seg.EndSilenceMS > 0 && seg.LingerMS > seg.EndSilenceMS {
		errs = append(errs, fmt.Errorf("segmenter.linger_ms %d must not exceed end_silence_ms %d", seg.LingerMS, seg.EndSilenceMS))
	}
	if seg.MaxSegmentMS > 0 && seg.MaxSegmentMS <= seg.EndSilenceMS {
		errs = append(errs, fmt.Errorf("segmenter.max_segment_ms %d must exceed end_silence_ms %d", seg.MaxSegmentMS, seg.EndSilenceMS))
	}

	errs = append(errs, validateSTT("providers.stt", cfg.Providers.STT)...)
	for i, fb := range cfg.Providers.STTFallbacks {
		prefix := fmt.Sprintf("providers.stt_fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		errs = append(errs, validateSTT(prefix, fb)...)
	}

	validateProviderName("vad", cfg.Providers.VAD.Name)
	if mode := cfg.Providers.VAD.IntOption("mode", 0); mode < 0 || mode > 3 {
		errs = append(errs, fmt.Errorf("providers.vad.options.mode %d is out of range [0, 3]", mode))
	}
	if th := cfg.Providers.VAD.FloatOption("threshold", 0); th < 0 {
		errs = append(errs, fmt.Errorf("providers.vad.options.threshold %.1f must not be negative", th))
	}

	seen := make(map[string]int, len(cfg.Vocabulary))
	for i, name := range cfg.Vocabulary {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			errs = append(errs, fmt.Errorf("vocabulary[%d] is empty", i))
			continue
		}
		if prev, ok := seen[key]; ok {
			slog.Warn("duplicate vocabulary entry", "entry", name, "first", prev, "index", i)
			continue
		}
		seen[key] = i
	}

	if cfg.Notify.ClientBuffer < 0 {
		errs = append(errs, fmt.Errorf("notify.client_buffer %d must not be negative", cfg.Notify.ClientBuffer))
	}
	if cfg.Notify.KeywordBoost < 0 {
		errs = append(errs, fmt.Errorf("notify.keyword_boost %.1f must not be negative", cfg.Notify.KeywordBoost))
	}

	return errors.Join(errs...)
}

// validateSTT checks the settings each known transcriber needs.
func validateSTT(prefix string, e ProviderEntry) []error {
	validateProviderName("stt", e.Name)

	var errs []error
	switch e.Name {
	case "whisper-native":
		if e.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required for whisper-native (path to a ggml model file)", prefix))
		}
	case "whisper":
		if e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for whisper (whisper-server URL)", prefix))
		}
	case "openai", "deepgram":
		if e.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required for %s", prefix, e.Name))
		}
	}
	if v, ok := e.Options["translate"]; ok {
		if _, isBool := v.(bool); !isBool {
			errs = append(errs, fmt.Errorf("%s.options.translate must be a boolean, got %T", prefix, v))
		}
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
