package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	disallowedChars = regexp.MustCompile(`[^a-z0-9\s-]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)

	// NFD, drop combining marks, recompose. Turns "Jalapeño" into "Jalapeno".
	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Canonicalize maps a free-text ingredient name to its comparable form:
// unicode-normalized, diacritics stripped, lowercased, restricted to
// [a-z0-9\s-], whitespace collapsed. Returns "" when nothing survives.
func Canonicalize(name string) string {
	s, _, err := transform.String(stripMarks, name)
	if err != nil {
		s = name
	}
	s = strings.ToLower(s)
	s = disallowedChars.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Slugify hyphenates a canonical name for use in storage paths and ids.
func Slugify(canonical string) string {
	return strings.ReplaceAll(canonical, " ", "-")
}

// IngredientID derives the stable identity for a canonical name: the slug plus
// a short hash, keeping ids both readable and URL-safe. Identity is a pure
// function of the name text; no lookup is involved.
func IngredientID(canonical string) string {
	if canonical == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(canonical))
	return Slugify(canonical) + "-" + hex.EncodeToString(sum[:4])
}
