// Package fuzzy resolves free text against a fixed candidate list.
//
// Resolve returns the best candidate with a confidence in [0, 100]; callers
// decide whether the confidence clears their threshold.
package fuzzy

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Thresholds used by the engine.
const (
	RoleThreshold     = 80
	ChampionThreshold = 75
)

// Normalize folds case, strips diacritics and drops everything that is not a
// letter or digit, so "Kai'Sa" and "kaisa" compare equal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = cases.Fold().String(out)
	var b strings.Builder
	b.Grow(len(out))
	for _, r := range out {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Ratio returns the similarity of a and b in [0, 100] after normalization.
func Ratio(a, b string) float64 {
	return ratio(Normalize(a), Normalize(b))
}

func ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	la, lb := len([]rune(a)), len([]rune(b))
	total := la + lb
	if total == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	sim := float64(total-d) / float64(total)
	if sim < 0 {
		sim = 0
	}
	return 100 * sim
}

// Resolve returns the candidate most similar to text and its confidence.
// Ties keep the earlier candidate. An empty candidate list returns ("", 0).
func Resolve(text string, candidates []string) (match string, confidence float64) {
	needle := Normalize(text)
	for _, c := range candidates {
		score := ratio(needle, Normalize(c))
		if score > confidence {
			match, confidence = c, score
		}
	}
	return match, confidence
}

// ResolveAbove returns the match only when its confidence reaches threshold.
func ResolveAbove(text string, candidates []string, threshold float64) (string, float64, bool) {
	match, conf := Resolve(text, candidates)
	if match == "" || conf < threshold {
		return "", conf, false
	}
	return match, conf, true
}
