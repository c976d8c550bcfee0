// Package stopword decides whether a transcript contains the spoken
// keyword that exits hands-free mode.
//
// Recognisers routinely mangle short words ("stop" arrives as "stopp",
// "stob" or "top"), so an exact string comparison misses real exits. The
// detector therefore accepts a token when it matches the keyword exactly,
// shares its Double Metaphone encoding, or is within a Jaro-Winkler
// similarity threshold.
package stopword

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// DefaultWord is the keyword used when none is configured.
const DefaultWord = "stop"

// defaultThreshold is the Jaro-Winkler similarity above which a token is
// accepted. Tuned against common one-syllable misrecognitions; raising it
// trades missed exits for fewer false ones.
const defaultThreshold = 0.88

// Detector matches one keyword against transcript tokens.
// Safe for concurrent use: all fields are read-only after construction.
type Detector struct {
	word      string
	primary   string
	secondary string
	threshold float64
}

// New creates a detector for word. An empty word selects [DefaultWord];
// a non-positive threshold selects the default of 0.88.
func New(word string, threshold float64) *Detector {
	if word == "" {
		word = DefaultWord
	}
	word = strings.ToLower(strings.TrimSpace(word))
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	primary, secondary := matchr.DoubleMetaphone(word)
	return &Detector{
		word:      word,
		primary:   primary,
		secondary: secondary,
		threshold: threshold,
	}
}

// Word returns the configured keyword.
func (d *Detector) Word() string { return d.word }

// Match reports whether any token of transcript counts as the keyword.
func (d *Detector) Match(transcript string) bool {
	for _, token := range tokenize(transcript) {
		if d.matchToken(token) {
			return true
		}
	}
	return false
}

func (d *Detector) matchToken(token string) bool {
	if token == d.word {
		return true
	}
	// Very short tokens produce too many phonetic collisions ("up" and
	// "top" both reduce toward the keyword); require at least three runes
	// before fuzzy comparison.
	if len(token) < 3 {
		return false
	}
	p, s := matchr.DoubleMetaphone(token)
	if p != "" && (p == d.primary || p == d.secondary) {
		return true
	}
	if s != "" && (s == d.primary || s == d.secondary) {
		return true
	}
	return matchr.JaroWinkler(token, d.word, true) >= d.threshold
}

// tokenize lowercases transcript and splits it on anything that is not a
// letter or digit.
func tokenize(transcript string) []string {
	return strings.FieldsFunc(strings.ToLower(transcript), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
