package search

import (
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"
)

// Match quality, highest first
const (
	ScoreExact   = 1.0
	ScoreKey     = 0.95 // Query found in the path or pattern key only
	ScoreStemmed = 0.9
	// Fuzzy hits score their similarity scaled into (0, ScoreFuzzyMax]
	ScoreFuzzyMax = 0.8
)

// minStemLength keeps short words like "io" out of the stemmer
const minStemLength = 3

// matcher scores annotation texts against one query
type matcher struct {
	query     string
	words     []string
	stems     []string
	fuzzy     bool
	stemming  bool
	threshold float64
}

func newMatcher(query string, opts Options) *matcher {
	m := &matcher{
		query:     strings.ToLower(strings.TrimSpace(query)),
		fuzzy:     opts.Fuzzy,
		stemming:  opts.Stemming,
		threshold: opts.FuzzyThreshold,
	}
	m.words = splitWords(m.query)
	if m.stemming {
		m.stems = stemAll(m.words)
	}
	return m
}

// splitWords lowercases and splits on anything that is not a letter or digit
func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func stem(word string) string {
	if len(word) < minStemLength {
		return word
	}
	return porter2.Stem(word)
}

func stemAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = stem(w)
	}
	return out
}

// score returns how well text (and failing that key) matches the query; 0 is no match
func (m *matcher) score(text, key string) float64 {
	if m.query == "" {
		return 0
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, m.query) {
		return ScoreExact
	}
	if key != "" && strings.Contains(strings.ToLower(key), m.query) {
		return ScoreKey
	}
	if len(m.words) == 0 {
		return 0
	}

	textWords := splitWords(lower)
	if m.stemming && allWordsMatch(m.stems, stemAll(textWords), func(a, b string) bool { return a == b }) {
		return ScoreStemmed
	}
	if m.fuzzy {
		if best := m.fuzzyScore(textWords); best > 0 {
			return best * ScoreFuzzyMax
		}
	}
	return 0
}

// fuzzyScore is the weakest best-word similarity over the query words, or 0
// when any query word has no text word above the threshold
func (m *matcher) fuzzyScore(textWords []string) float64 {
	weakest := 1.0
	for _, q := range m.words {
		best := 0.0
		for _, w := range textWords {
			if sim := similarity(q, w); sim > best {
				best = sim
			}
		}
		if best < m.threshold {
			return 0
		}
		if best < weakest {
			weakest = best
		}
	}
	return weakest
}

func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	score, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return float64(score)
}

// allWordsMatch reports whether every query word equals some text word
func allWordsMatch(query, text []string, eq func(a, b string) bool) bool {
	if len(query) == 0 {
		return false
	}
	for _, q := range query {
		found := false
		for _, t := range text {
			if eq(q, t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
