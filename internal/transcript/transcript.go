// Package transcript corrects misheard vocabulary in recognized answers.
//
// Speech recognition regularly garbles proper nouns such as university,
// employer or product names. A [Corrector] slides a window over the words of
// a transcript and replaces phrases that sound like a configured term with
// the term's spelling. Punctuation around a replaced phrase is kept.
package transcript

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/parley/internal/transcript/phonetic"
)

// Correction records one substitution.
type Correction struct {
	// Original is the phrase as recognized.
	Original string

	// Corrected is the configured term that replaced it.
	Corrected string

	// Confidence is the similarity score in [0, 1].
	Confidence float64
}

// Matcher resolves a phrase to the closest prepared term.
type Matcher interface {
	MatchPrepared(phrase string, terms *phonetic.Terms) (corrected string, confidence float64, matched bool)
}

var _ Matcher = (*phonetic.Matcher)(nil)

// Option configures a [Corrector].
type Option func(*Corrector)

// WithMatcher replaces the default [phonetic.Matcher].
func WithMatcher(m Matcher) Option {
	return func(c *Corrector) { c.matcher = m }
}

// Corrector is immutable after construction and safe for concurrent use.
type Corrector struct {
	matcher Matcher
	terms   *phonetic.Terms
}

// New prepares a Corrector for terms.
func New(terms []string, opts ...Option) *Corrector {
	c := &Corrector{
		matcher: phonetic.New(),
		terms:   phonetic.Prepare(terms),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct returns text with misheard terms replaced. Every window of up to
// the longest term's word count is scored, and the best matches that do not
// overlap are applied. A window never matches a term with fewer words than
// itself, so neighbouring words are not swallowed.
func (c *Corrector) Correct(text string) (string, []Correction) {
	words := strings.Fields(text)
	maxN := c.terms.MaxWords()
	if len(words) == 0 || maxN == 0 {
		return text, nil
	}

	type candidate struct {
		at, n  int
		phrase string
		term   string
		conf   float64
	}
	var cands []candidate
	for i := range words {
		for n := 1; n <= min(maxN, len(words)-i); n++ {
			phrase := core(words[i : i+n])
			if phrase == "" {
				continue
			}
			term, conf, ok := c.matcher.MatchPrepared(phrase, c.terms)
			if ok && len(strings.Fields(term)) >= n {
				cands = append(cands, candidate{at: i, n: n, phrase: phrase, term: term, conf: conf})
			}
		}
	}
	slices.SortStableFunc(cands, func(a, b candidate) int {
		if a.conf != b.conf {
			return cmp.Compare(b.conf, a.conf)
		}
		return cmp.Compare(b.n, a.n)
	})

	taken := make([]bool, len(words))
	chosen := make(map[int]candidate)
next:
	for _, cd := range cands {
		for j := cd.at; j < cd.at+cd.n; j++ {
			if taken[j] {
				continue next
			}
		}
		for j := cd.at; j < cd.at+cd.n; j++ {
			taken[j] = true
		}
		chosen[cd.at] = cd
	}

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(words); {
		cd, ok := chosen[i]
		if !ok {
			out = append(out, words[i])
			i++
			continue
		}
		lead, _, _ := splitPunct(words[i])
		_, _, trail := splitPunct(words[i+cd.n-1])
		out = append(out, lead+cd.term+trail)
		if cd.phrase != cd.term {
			corrections = append(corrections, Correction{Original: cd.phrase, Corrected: cd.term, Confidence: cd.conf})
		}
		i += cd.n
	}
	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

// core joins the words of a window without their outer punctuation.
// Punctuation between words ends the window, so a phrase never spans a
// sentence boundary.
func core(words []string) string {
	parts := make([]string, len(words))
	for i, w := range words {
		lead, mid, trail := splitPunct(w)
		if mid == "" || (i > 0 && lead != "") || (i < len(words)-1 && trail != "") {
			return ""
		}
		parts[i] = mid
	}
	return strings.Join(parts, " ")
}

// splitPunct separates leading and trailing punctuation from a word.
// Hyphens and apostrophes belong to the word.
func splitPunct(w string) (lead, mid, trail string) {
	notPunct := func(r rune) bool { return !unicode.IsPunct(r) || r == '-' || r == '\'' }
	start := strings.IndexFunc(w, notPunct)
	if start < 0 {
		return w, "", ""
	}
	end := strings.LastIndexFunc(w, notPunct)
	_, size := utf8.DecodeRuneInString(w[end:])
	end += size
	return w[:start], w[start:end], w[end:]
}
