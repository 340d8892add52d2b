// Package phonetic matches misheard phrases against a vocabulary of proper
// nouns using Double Metaphone codes and Jaro-Winkler similarity.
//
// A phrase matches a vocabulary entry when either
//
//   - the phrase and the entry share a Double Metaphone code (computed on the
//     space-stripped strings) and their similarity reaches the phonetic
//     threshold, or
//   - their similarity alone reaches the higher fuzzy threshold.
//
// Similarity is the best of the Jaro-Winkler score on the full strings, on
// the space-stripped strings ("grim jaw" vs "grimjaw") and, when both have
// the same number of words, the mean of the word-by-word scores.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90

	// Phrases with fewer letters than this are never corrected.
	minLetters = 3
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity for phonetically
// equivalent phrases. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum similarity for phrases without a
// phonetic match. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher scores phrases against a [Vocabulary]. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher with the default thresholds.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type entry struct {
	name   string
	lower  string
	concat string
	tokens []string
	codes  [2]string
}

// Vocabulary is a prepared, immutable list of proper nouns.
type Vocabulary struct {
	entries  []entry
	maxWords int
}

// Prepare lower-cases, tokenises and encodes names once. Blank and
// duplicate names are skipped.
func Prepare(names []string) *Vocabulary {
	v := &Vocabulary{}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		lower := strings.ToLower(name)
		if lower == "" {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}

		tokens := strings.Fields(lower)
		concat := strings.Join(tokens, "")
		p, s := matchr.DoubleMetaphone(concat)
		v.entries = append(v.entries, entry{
			name:   name,
			lower:  strings.Join(tokens, " "),
			concat: concat,
			tokens: tokens,
			codes:  [2]string{p, s},
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// Len returns the number of entries.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.entries)
}

// MaxWords returns the word count of the longest entry.
func (v *Vocabulary) MaxWords() int {
	if v == nil {
		return 0
	}
	return v.maxWords
}

// Names returns the entries in their original spelling.
func (v *Vocabulary) Names() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.entries))
	for i, e := range v.entries {
		out[i] = e.name
	}
	return out
}

// Match returns the vocabulary entry most similar to phrase. When nothing
// reaches a threshold it returns phrase unchanged, 0 and false.
func (m *Matcher) Match(phrase string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	if v.Len() == 0 {
		return phrase, 0, false
	}
	tokens := strings.Fields(strings.ToLower(phrase))
	concat := strings.Join(tokens, "")
	if letters(concat) < minLetters {
		return phrase, 0, false
	}
	full := strings.Join(tokens, " ")
	p, s := matchr.DoubleMetaphone(concat)

	var (
		best     string
		bestConf float64
	)
	for _, e := range v.entries {
		score := similarity(tokens, full, concat, e)
		phonetic := codesOverlap([2]string{p, s}, e.codes)
		if score < m.fuzzyThreshold && !(phonetic && score >= m.phoneticThreshold) {
			continue
		}
		if score > bestConf {
			best, bestConf = e.name, score
		}
	}
	if best == "" {
		return phrase, 0, false
	}
	return best, bestConf, true
}

func similarity(tokens []string, full, concat string, e entry) float64 {
	score := matchr.JaroWinkler(full, e.lower, false)
	if s := matchr.JaroWinkler(concat, e.concat, false); s > score {
		score = s
	}
	if n := len(tokens); n > 1 && n == len(e.tokens) {
		var sum float64
		for i := range tokens {
			sum += matchr.JaroWinkler(tokens[i], e.tokens[i], false)
		}
		if s := sum / float64(n); s > score {
			score = s
		}
	}
	return score
}

func codesOverlap(a, b [2]string) bool {
	for _, x := range a {
		if x == "" {
			continue
		}
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func letters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
