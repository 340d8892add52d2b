package phonetic_test

import (
	"testing"

	"github.com/MrWong99/murmur/internal/transcript/phonetic"
)

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	vocab := phonetic.Prepare([]string{"Eldrinax", "Grimjaw", "Tower of Whispers"})
	m := phonetic.New()

	tests := []struct {
		phrase  string
		want    string
		matched bool
		minConf float64
	}{
		{phrase: "grimjaw", want: "Grimjaw", matched: true, minConf: 0.99},
		{phrase: "GRIMJAW", want: "Grimjaw", matched: true, minConf: 0.99},
		{phrase: "grim jaw", want: "Grimjaw", matched: true, minConf: 0.99},
		{phrase: "tower of wispers", want: "Tower of Whispers", matched: true, minConf: 0.9},
		{phrase: "hello", want: "hello"},
		{phrase: "to the tower", want: "to the tower"},
		{phrase: "ok", want: "ok"},
		{phrase: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			t.Parallel()
			got, conf, ok := m.Match(tt.phrase, vocab)
			if ok != tt.matched {
				t.Fatalf("Match(%q) matched = %v (%q, %.3f), want %v", tt.phrase, ok, got, conf, tt.matched)
			}
			if got != tt.want {
				t.Errorf("Match(%q) = %q, want %q", tt.phrase, got, tt.want)
			}
			if !ok && conf != 0 {
				t.Errorf("Match(%q) confidence = %f on miss, want 0", tt.phrase, conf)
			}
			if ok && conf < tt.minConf {
				t.Errorf("Match(%q) confidence = %f, want >= %f", tt.phrase, conf, tt.minConf)
			}
		})
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()

	vocab := phonetic.Prepare([]string{"Tower of Whispers"})
	strict := phonetic.New(phonetic.WithPhoneticThreshold(1), phonetic.WithFuzzyThreshold(1))
	if _, _, ok := strict.Match("tower of wispers", vocab); ok {
		t.Error("strict matcher accepted a near match")
	}
	if _, _, ok := strict.Match("Tower of Whispers", vocab); !ok {
		t.Error("strict matcher rejected an exact match")
	}
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	v := phonetic.Prepare([]string{" Grimjaw ", "grimjaw", "", "Tower of Whispers"})
	if v.Len() != 2 {
		t.Errorf("Len = %d, want 2", v.Len())
	}
	if v.MaxWords() != 3 {
		t.Errorf("MaxWords = %d, want 3", v.MaxWords())
	}
	names := v.Names()
	if len(names) != 2 || names[0] != "Grimjaw" || names[1] != "Tower of Whispers" {
		t.Errorf("Names = %v", names)
	}

	var empty *phonetic.Vocabulary
	if empty.Len() != 0 || empty.MaxWords() != 0 || empty.Names() != nil {
		t.Error("nil vocabulary is not empty")
	}
	if got, _, ok := phonetic.New().Match("grimjaw", empty); ok || got != "grimjaw" {
		t.Errorf("Match against nil vocabulary = %q, %v", got, ok)
	}
}
