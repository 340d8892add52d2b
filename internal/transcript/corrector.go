// Package transcript post-processes finished transcriptions.
//
// General-purpose speech models reliably mishear proper nouns: names of
// people, places and products that are not in their training vocabulary.
// [Corrector] replaces phrases that sound like an entry of a configured
// vocabulary with the entry's canonical spelling, using the phonetic
// matcher from the phonetic sub-package. The vocabulary can be swapped at
// runtime, e.g. from a configuration reload.
package transcript

import (
	"slices"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/murmur/internal/transcript/phonetic"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// Correction is a single substitution made by [Corrector.Correct].
type Correction struct {
	// Original is the phrase as transcribed, without surrounding punctuation.
	Original string

	// Corrected is the vocabulary entry that replaced it.
	Corrected string

	// Confidence is the similarity score in [0, 1].
	Confidence float64
}

// Corrector rewrites transcripts against a vocabulary. It is safe for
// concurrent use.
type Corrector struct {
	matcher *phonetic.Matcher
	vocab   atomic.Pointer[phonetic.Vocabulary]
}

// NewCorrector returns a Corrector for names. opts tune the matcher.
func NewCorrector(names []string, opts ...phonetic.Option) *Corrector {
	c := &Corrector{matcher: phonetic.New(opts...)}
	c.SetVocabulary(names)
	return c
}

// SetVocabulary replaces the vocabulary. In-flight corrections finish with
// the previous one.
func (c *Corrector) SetVocabulary(names []string) {
	c.vocab.Store(phonetic.Prepare(names))
}

// Vocabulary returns the current entries.
func (c *Corrector) Vocabulary() []string {
	return c.vocab.Load().Names()
}

// Keywords turns the vocabulary into transcriber hints with the given
// boost.
func (c *Corrector) Keywords(boost float64) []stt.KeywordBoost {
	names := c.Vocabulary()
	kw := make([]stt.KeywordBoost, len(names))
	for i, n := range names {
		kw[i] = stt.KeywordBoost{Keyword: n, Boost: boost}
	}
	return kw
}

type token struct {
	lead, core, trail string
}

// Correct returns text with every recognised vocabulary phrase replaced and
// the list of substitutions in text order. Text without matches is
// returned unchanged.
//
// Windows of up to one word more than the longest entry are scored, so a
// name split by the recogniser ("grim jaw") is joined again. Overlapping
// candidates are resolved in favour of the highest score.
func (c *Corrector) Correct(text string) (string, []Correction) {
	vocab := c.vocab.Load()
	if vocab.Len() == 0 {
		return text, nil
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return text, nil
	}
	tokens := make([]token, len(fields))
	for i, f := range fields {
		tokens[i] = split(f)
	}

	type candidate struct {
		start, end int
		Correction
	}
	var cands []candidate
	maxN := vocab.MaxWords() + 1
	for i := range tokens {
		for n := 1; n <= maxN && i+n <= len(tokens); n++ {
			// Sentence punctuation inside the window ends the phrase.
			if n > 1 && tokens[i+n-2].trail != "" {
				break
			}
			phrase := joinCores(tokens[i : i+n])
			entity, conf, ok := c.matcher.Match(phrase, vocab)
			if !ok {
				continue
			}
			cands = append(cands, candidate{start: i, end: i + n, Correction: Correction{
				Original:   phrase,
				Corrected:  entity,
				Confidence: conf,
			}})
		}
	}
	if len(cands) == 0 {
		return text, nil
	}

	slices.SortStableFunc(cands, func(a, b candidate) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return (b.end - b.start) - (a.end - a.start)
	})
	taken := make([]bool, len(tokens))
	var chosen []candidate
	for _, cand := range cands {
		if slices.Contains(taken[cand.start:cand.end], true) {
			continue
		}
		for i := cand.start; i < cand.end; i++ {
			taken[i] = true
		}
		chosen = append(chosen, cand)
	}
	slices.SortFunc(chosen, func(a, b candidate) int { return a.start - b.start })

	var (
		out         []string
		corrections []Correction
		next        int
	)
	for _, cand := range chosen {
		out = append(out, fields[next:cand.start]...)
		next = cand.end
		if cand.Original == cand.Corrected {
			out = append(out, fields[cand.start:cand.end]...)
			continue
		}
		out = append(out, tokens[cand.start].lead+cand.Corrected+tokens[cand.end-1].trail)
		corrections = append(corrections, cand.Correction)
	}
	out = append(out, fields[next:]...)
	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

// split separates leading and trailing punctuation from a word.
func split(field string) token {
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
	start := strings.IndexFunc(field, isWord)
	if start < 0 {
		return token{lead: field}
	}
	end := strings.LastIndexFunc(field, isWord)
	_, size := utf8.DecodeRuneInString(field[end:])
	end += size
	return token{lead: field[:start], core: field[start:end], trail: field[end:]}
}

func joinCores(tokens []token) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.core != "" {
			parts = append(parts, t.core)
		}
	}
	return strings.Join(parts, " ")
}
