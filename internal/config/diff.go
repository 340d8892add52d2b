package config

import (
	"reflect"
	"slices"
	"strings"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VocabularyChanged bool
	Added             []string // entries present only in the new config
	Removed           []string // entries present only in the old config

	// RestartRequired lists the sections whose changes only take effect
	// after a restart (capture, segmenter, providers, server.listen_addr).
	RestartRequired []string
}

// Changed reports whether any hot-reloadable field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VocabularyChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldVocab := vocabSet(old.Vocabulary)
	newVocab := vocabSet(new.Vocabulary)
	for key, name := range newVocab {
		if _, ok := oldVocab[key]; !ok {
			d.Added = append(d.Added, name)
		}
	}
	for key, name := range oldVocab {
		if _, ok := newVocab[key]; !ok {
			d.Removed = append(d.Removed, name)
		}
	}
	slices.Sort(d.Added)
	slices.Sort(d.Removed)
	d.VocabularyChanged = len(d.Added) > 0 || len(d.Removed) > 0

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Capture != new.Capture {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if old.Segmenter != new.Segmenter {
		d.RestartRequired = append(d.RestartRequired, "segmenter")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !reflect.DeepEqual(old.Notify, new.Notify) {
		d.RestartRequired = append(d.RestartRequired, "notify")
	}

	return d
}

// vocabSet keys entries case-insensitively, keeping the first spelling.
func vocabSet(names []string) map[string]string {
	m := make(map[string]string, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" {
			continue
		}
		if _, ok := m[key]; !ok {
			m[key] = strings.TrimSpace(n)
		}
	}
	return m
}

func providersEqual(a, b ProvidersConfig) bool {
	if !entryEqual(a.STT, b.STT) || !entryEqual(a.VAD, b.VAD) {
		return false
	}
	return slices.EqualFunc(a.STTFallbacks, b.STTFallbacks, entryEqual)
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || !reflect.DeepEqual(v, w) {
			return false
		}
	}
	return true
}
