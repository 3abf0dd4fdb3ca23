package veille

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/veille/internal/model"
)

var communePrefixRe = regexp.MustCompile(`(?i)^\s*(?:commune|ville)\b(?:\s+de\b|\s+d['’])?\s*`)

// trailingNoise are words left at the end of a captured commune name when
// the capture ran into an address or sentence.
var trailingNoise = map[string]bool{
	"Route":  true,
	"Rue":    true,
	"Chemin": true,
	"Avenue": true,
	"Le":     true,
	"La":     true,
	"Les":    true,
	"Du":     true,
	"Des":    true,
	"Et":     true,
}

// StripCommunePrefix removes a leading "Commune de" / "Ville de".
func StripCommunePrefix(s string) string {
	return strings.TrimSpace(communePrefixRe.ReplaceAllString(s, ""))
}

// NormalizeCommune turns a raw commune capture into its display form:
// prefix removed, every word and hyphen part title-cased, a leading "De"
// dropped unless it starts "De La"/"De Le", trailing noise words removed.
// An empty result falls back to model.CommuneUnknown.
func NormalizeCommune(raw string) string {
	// Casers are stateful; scrapers normalize concurrently.
	lower := cases.Lower(language.French)
	title := cases.Title(language.French)

	words := strings.Fields(StripCommunePrefix(raw))
	for i, w := range words {
		words[i] = titleWord(w, lower, title)
	}

	if len(words) > 1 && words[0] == "De" && words[1] != "La" && words[1] != "Le" {
		words = words[1:]
	}
	for len(words) > 1 && trailingNoise[words[len(words)-1]] {
		words = words[:len(words)-1]
	}

	name := strings.Trim(strings.Join(words, " "), " ,.;:-")
	if name == "" {
		return model.CommuneUnknown
	}
	return name
}

// titleWord title-cases each hyphen-separated part of w.
func titleWord(w string, lower, title cases.Caser) string {
	parts := strings.Split(lower.String(w), "-")
	for i, p := range parts {
		parts[i] = title.String(p)
	}
	return strings.Join(parts, "-")
}
