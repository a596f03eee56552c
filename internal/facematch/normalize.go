package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizePersonName normalizes a name for comparison (lowercase, no diacritics,
// spaces for dashes, collapsed whitespace).
func NormalizePersonName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// CleanName trims a registrant name as typed by an operator. Internal
// whitespace runs are collapsed; case and diacritics are kept.
func CleanName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// FindEquivalentName returns the first existing name that normalizes to the same
// form as name but is not byte-identical to it.
func FindEquivalentName(existing []string, name string) (string, bool) {
	want := NormalizePersonName(name)
	for _, e := range existing {
		if e != name && NormalizePersonName(e) == want {
			return e, true
		}
	}
	return "", false
}
