// Package phonetic matches misheard phrases to known terms using Double
// Metaphone codes and Jaro-Winkler similarity.
//
// A term is a phonetic candidate when any Double Metaphone code of the phrase
// overlaps a code of the term. Candidates are ranked by Jaro-Winkler
// similarity and accepted above the phonetic threshold. When no candidate
// overlaps, a term is still accepted on pure similarity above the higher
// fuzzy threshold.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// Terms shorter than this only match exactly, ignoring case.
	minFuzzyLen = 4
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity for a phonetic candidate.
// Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum similarity when no phonetic candidate
// exists. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
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

// Terms is a prepared term list. Codes are computed once per list.
type Terms struct {
	items    []preparedTerm
	maxWords int
}

type preparedTerm struct {
	original string
	lower    string
	tokens   []string
	codes    map[string]struct{}
}

// Prepare computes the phonetic codes of terms. Blank terms are skipped.
func Prepare(terms []string) *Terms {
	ts := &Terms{items: make([]preparedTerm, 0, len(terms))}
	for _, term := range terms {
		lower := strings.ToLower(strings.TrimSpace(term))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		ts.items = append(ts.items, preparedTerm{
			original: strings.TrimSpace(term),
			lower:    lower,
			tokens:   tokens,
			codes:    codesFor(tokens),
		})
		ts.maxWords = max(ts.maxWords, len(tokens))
	}
	return ts
}

// MaxWords is the word count of the longest term, or 0 for an empty list.
func (ts *Terms) MaxWords() int { return ts.maxWords }

// Match finds the term most similar to phrase. When matched is false the
// phrase is returned unchanged with zero confidence.
func (m *Matcher) Match(phrase string, terms []string) (corrected string, confidence float64, matched bool) {
	return m.MatchPrepared(phrase, Prepare(terms))
}

// MatchPrepared is [Matcher.Match] against a prepared list.
func (m *Matcher) MatchPrepared(phrase string, ts *Terms) (corrected string, confidence float64, matched bool) {
	lower := strings.ToLower(strings.TrimSpace(phrase))
	if lower == "" || ts == nil || len(ts.items) == 0 {
		return phrase, 0, false
	}
	tokens := strings.Fields(lower)
	codes := codesFor(tokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range ts.items {
		if len([]rune(t.lower)) < minFuzzyLen {
			if lower == t.lower {
				return t.original, 1, true
			}
			continue
		}
		score := similarity(tokens, t.tokens, lower, t.lower)
		if overlaps(codes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t.original, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t.original, score
		}
	}
	if best == "" {
		return phrase, 0, false
	}
	return best, bestScore, true
}

func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the full strings, the
// strings with spaces removed, and the word-by-word average when both sides
// have the same number of words.
func similarity(phraseTokens, termTokens []string, phrase, term string) float64 {
	score := matchr.JaroWinkler(phrase, term, false)

	if len(phraseTokens) > 1 || len(termTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(phraseTokens, ""), strings.Join(termTokens, ""), false)
		score = max(score, joined)
	}
	if len(phraseTokens) > 1 && len(phraseTokens) == len(termTokens) {
		var sum float64
		for i := range phraseTokens {
			sum += matchr.JaroWinkler(phraseTokens[i], termTokens[i], false)
		}
		score = max(score, sum/float64(len(phraseTokens)))
	}
	return score
}
