// Package config provides the configuration schema, loader, file watcher and
// provider registry for the murmur speech front end.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults] to zero-valued fields.
const (
	DefaultListenAddr   = ":9090"
	DefaultEndSilenceMS = 240
	DefaultLingerMS     = 90
	DefaultMaxSegmentMS = 30000
	DefaultSTTProvider  = "whisper-native"
	DefaultVADProvider  = "webrtc"
	DefaultKeywordBoost = 2.0
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Capture    CaptureConfig   `yaml:"capture"`
	Segmenter  SegmenterConfig `yaml:"segmenter"`
	Providers  ProvidersConfig `yaml:"providers"`
	Vocabulary []string        `yaml:"vocabulary"`
	Notify     NotifyConfig    `yaml:"notify"`
}

// ServerConfig holds the HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health, metrics and events
	// endpoints (e.g., ":9090").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It can be changed without a restart.
	LogLevel LogLevel `yaml:"log_level"`
}

// CaptureConfig selects the input device.
type CaptureConfig struct {
	// Device is the exact device name as reported by -list-devices. Empty
	// selects the system default input.
	Device string `yaml:"device"`

	// BufferMS caps the device buffer length. Zero lets the driver pick
	// roughly 30 ms.
	BufferMS int `yaml:"buffer_ms"`
}

// SegmenterConfig holds the segment boundary thresholds, in milliseconds.
type SegmenterConfig struct {
	EndSilenceMS int `yaml:"end_silence_ms"`
	LingerMS     int `yaml:"linger_ms"`

	// MaxSegmentMS force-ends a segment that grows this long. A negative
	// value disables the limit.
	MaxSegmentMS int `yaml:"max_segment_ms"`
}

// EndSilence returns the end-of-segment silence as a duration.
func (s SegmenterConfig) EndSilence() time.Duration {
	return time.Duration(s.EndSilenceMS) * time.Millisecond
}

// Linger returns the trailing-silence linger window as a duration.
func (s SegmenterConfig) Linger() time.Duration {
	return time.Duration(s.LingerMS) * time.Millisecond
}

// MaxSegment returns the segment length limit, or 0 when disabled.
func (s SegmenterConfig) MaxSegment() time.Duration {
	if s.MaxSegmentMS < 0 {
		return 0
	}
	return time.Duration(s.MaxSegmentMS) * time.Millisecond
}

// ProvidersConfig declares which backend to use for each pipeline stage.
// Each entry selects a named factory registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`

	// STTFallbacks are tried in order when the primary transcriber fails
	// or its circuit breaker is open.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the configuration for a single provider instance.
type ProviderEntry struct {
	// Name selects the registered factory (e.g., "whisper-native", "openai").
	Name string `yaml:"name"`

	// APIKey is the secret for hosted providers.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint (whisper-server URL, OpenAI
	// compatible gateway, Deepgram websocket endpoint).
	BaseURL string `yaml:"base_url"`

	// Model is the model file path for whisper-native or the model name for
	// hosted providers.
	Model string `yaml:"model"`

	// Options holds provider-specific settings such as "language",
	// "translate", "mode" or "threshold".
	Options map[string]any `yaml:"options"`
}

// StringOption returns Options[key] as a string, or def when unset.
func (e ProviderEntry) StringOption(key, def string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return def
}

// BoolOption returns Options[key] as a bool, or def when unset.
func (e ProviderEntry) BoolOption(key string, def bool) bool {
	if v, ok := e.Options[key].(bool); ok {
		return v
	}
	return def
}

// FloatOption returns Options[key] as a float64, or def when unset. YAML
// integers are accepted.
func (e ProviderEntry) FloatOption(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// IntOption returns Options[key] as an int, or def when unset.
func (e ProviderEntry) IntOption(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// NotifyConfig controls where transcription events are published.
type NotifyConfig struct {
	// WebSocket enables the /events endpoint that streams stt_interim and
	// stt_final events to connected clients.
	WebSocket bool `yaml:"websocket"`

	// Log writes every event to the structured log as well.
	Log bool `yaml:"log"`

	// ClientBuffer is the per-client event queue length.
	ClientBuffer int `yaml:"client_buffer"`

	// Origins lists host patterns allowed to open cross-origin websocket
	// connections (for example "localhost:*"). Same-origin requests are
	// always accepted.
	Origins []string `yaml:"origins"`

	// KeywordBoost is the boost passed to transcribers that accept
	// vocabulary hints.
	KeywordBoost float64 `yaml:"keyword_boost"`
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Segmenter.EndSilenceMS == 0 {
		cfg.Segmenter.EndSilenceMS = DefaultEndSilenceMS
	}
	if cfg.Segmenter.LingerMS == 0 {
		// Short end thresholds cap the default linger.
		cfg.Segmenter.LingerMS = DefaultLingerMS
		if end := cfg.Segmenter.EndSilenceMS; end > 0 && end < DefaultLingerMS {
			cfg.Segmenter.LingerMS = end
		}
	}
	if cfg.Segmenter.MaxSegmentMS == 0 {
		cfg.Segmenter.MaxSegmentMS = DefaultMaxSegmentMS
	}
	if cfg.Providers.STT.Name == "" {
		cfg.Providers.STT.Name = DefaultSTTProvider
	}
	if cfg.Providers.VAD.Name == "" {
		cfg.Providers.VAD.Name = DefaultVADProvider
	}
	if cfg.Notify.KeywordBoost == 0 {
		cfg.Notify.KeywordBoost = DefaultKeywordBoost
	}
}
