package gazette

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sells-group/veille/internal/model"
	"github.com/sells-group/veille/internal/veille"
)

const (
	sectionWindow     = 5000 // characters captured after a section header
	maxSegmentLen     = 800  // characters per commune segment
	maxCommuneLen     = 40   // longer captures are mis-scoped
	maxDescriptionLen = 300
)

// sectionRule maps a section header to the type of the notices below it.
type sectionRule struct {
	re      *regexp.Regexp
	pubType model.PublicationType
}

// Evaluated in order; every rule scans the whole text.
var sectionRules = []sectionRule{
	{regexp.MustCompile(`(?i)mises?\s+[àa]\s+l['’]\s*enqu[êe]tes?`), model.TypeMiseALEnquete},
	{regexp.MustCompile(`(?i)permis\s+de\s+construire`), model.TypePermisConstruire},
	{regexp.MustCompile(`(?i)demandes?\s+d['’]\s*autorisation\s+de\s+construire`), model.TypeAutorisationConstruire},
	{regexp.MustCompile(`(?i)avis\s+officiels?`), model.TypeAvisOfficiel},
	{regexp.MustCompile(`(?i)(?:d[ée]lai\s+d['’]\s*)?opposition`), model.TypeOpposition},
}

var (
	communeMarkerRe = regexp.MustCompile(`(?i)\b(?:commune|ville)\s+(?:de\s+|d['’]\s*)`)

	// Table column headings captured as if they were notices.
	tableHeaderRe = regexp.MustCompile(`(?i)^(?:commune|ville)\s+(?:de|d['’])\s*(?:situation|l['’]\s*immeuble|domicile|la\s+parcelle)\b`)

	parcelRe      = regexp.MustCompile(`(?i)\b(?:parcelles?|art\.|article|bien-fonds)\s*(?:n[°o]\.?\s*)?(\d[\d']*[a-z]?)\b`)
	addressRe     = regexp.MustCompile(`(?i)\b((?:route|rue|chemin|avenue|impasse|place|allée)\s+[^,;.\n]{2,50})`)
	projectTypeRe = regexp.MustCompile(`(?i)\b((?:construction|transformation|agrandissement|démolition|rénovation|installation|aménagement|création|remplacement|pose|assainissement)\b[^,.;\n]{0,80})`)
	ownerRe       = regexp.MustCompile(`(?i)(?:requérant|propriétaire|maître\s+de\s+l['’]ouvrage)s?\s*(?:\([^)]*\))?\s*:\s*([^,;\n]{2,80})`)
)

// nameStops end a commune capture: addresses, parcel references, people
// and the project words projectTypeRe recognizes.
var nameStops = map[string]bool{
	"route": true, "rue": true, "chemin": true, "avenue": true, "impasse": true,
	"parcelle": true, "parcelles": true, "art": true, "article": true,
	"requerant": true, "proprietaire": true, "mme": true, "madame": true, "monsieur": true,
	"construction": true, "transformation": true, "agrandissement": true, "demolition": true,
	"renovation": true, "installation": true, "amenagement": true, "creation": true,
	"remplacement": true, "pose": true, "assainissement": true,
}

// nameStopPairs are two-word stops ("Le dossier", "Les plans").
var nameStopPairs = map[string]bool{
	"le dossier": true, "les plans": true, "la demande": true, "le projet": true,
}

// nonCommuneWords mark a capture that picked up prose, not a place name.
var nonCommuneWords = map[string]bool{
	"dossier": true, "enquete": true, "parcelle": true, "proprietaire": true,
	"requerant": true, "article": true, "reglement": true, "loi": true,
	"seance": true, "conseil": true,
}

// tableColumnWords identify a table heading row.
var tableColumnWords = []string{"parcelle", "requerant", "proprietaire", "objet", "situation", "adresse", "coordonnees", "auteur"}

// Section is a header match and the text window following it.
type Section struct {
	Header  string
	Type    model.PublicationType
	Content string
}

// ParseOptions carries what the parser cannot derive from the text.
type ParseOptions struct {
	Scraper         string
	Canton          model.Canton
	DocumentURL     string
	CommuneFallback string
	Now             time.Time
}

// FindSections captures a window after every header match. Windows of
// different headers may overlap; a match inside its own rule's previous
// window is not captured again.
func FindSections(text string) []Section {
	var sections []Section
	for _, rule := range sectionRules {
		lastEnd := -1
		for _, loc := range rule.re.FindAllStringIndex(text, -1) {
			if loc[0] < lastEnd {
				continue
			}
			end := advanceRunes(text, loc[1], sectionWindow)
			sections = append(sections, Section{
				Header:  veille.CollapseSpace(text[loc[0]:loc[1]]),
				Type:    rule.pubType,
				Content: text[loc[1]:end],
			})
			lastEnd = end
		}
	}
	return sections
}

// Parse turns gazette text into publications.
func Parse(text string, opts ParseOptions) []model.Publication {
	var out []model.Publication
	for _, sec := range FindSections(text) {
		for _, seg := range Segments(sec.Content) {
			if p, ok := buildPublication(sec, seg, opts); ok {
				out = append(out, p)
			}
		}
	}
	return out
}

// Segments splits section content at commune markers. Each segment runs from
// its marker to the next one, capped at maxSegmentLen characters.
func Segments(content string) []string {
	locs := communeMarkerRe.FindAllStringIndex(content, -1)
	segs := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if capped := advanceRunes(content, loc[0], maxSegmentLen); capped < end {
			end = capped
		}
		segs = append(segs, content[loc[0]:end])
	}
	return segs
}

// ExtractCommune returns the raw commune name following the marker that
// starts seg, or "" when seg does not start with a marker.
func ExtractCommune(seg string) string {
	loc := communeMarkerRe.FindStringIndex(seg)
	if loc == nil || strings.TrimSpace(seg[:loc[0]]) != "" {
		return ""
	}
	return captureName(seg[loc[1]:])
}

// captureName reads a place name, stopping at punctuation, a trailing
// keyword, a number, or the start of a sentence (a capitalized word followed
// by a lowercase one).
func captureName(s string) string {
	if i := strings.IndexAny(s, ",.;:\n("); i >= 0 {
		s = s[:i]
	}
	tokens := strings.Fields(s)
	var kept []string
	for i, tok := range tokens {
		folded := veille.Fold(tok)
		if nameStops[folded] {
			break
		}
		if i+1 < len(tokens) && nameStopPairs[folded+" "+veille.Fold(tokens[i+1])] {
			break
		}
		first, _ := utf8.DecodeRuneInString(tok)
		if unicode.IsDigit(first) {
			break
		}
		if i > 0 && unicode.IsUpper(first) && i+1 < len(tokens) {
			next, _ := utf8.DecodeRuneInString(tokens[i+1])
			if unicode.IsLower(next) {
				break
			}
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

func buildPublication(sec Section, seg string, opts ParseOptions) (model.Publication, bool) {
	if isTableHeader(seg) {
		return model.Publication{}, false
	}

	raw := ExtractCommune(seg)
	if utf8.RuneCountInString(raw) > maxCommuneLen || hasNonCommuneWord(raw) {
		return model.Publication{}, false
	}
	commune := opts.CommuneFallback
	if raw != "" {
		commune = veille.NormalizeCommune(raw)
	}
	if commune == "" {
		commune = model.CommuneFribourg
	}

	details := extractDetails(seg)
	meta := model.Metadata{
		"scraper":      opts.Scraper,
		"section":      sec.Header,
		"document_url": opts.DocumentURL,
	}
	for k, v := range details {
		meta[k] = v
	}

	return model.Publication{
		Title:       synthesizeTitle(commune, sec.Type, details),
		Description: truncate(veille.CollapseSpace(seg), maxDescriptionLen),
		URL:         opts.DocumentURL,
		Commune:     commune,
		Canton:      opts.Canton,
		Type:        sec.Type,
		PublishedAt: opts.Now,
		Metadata:    meta,
	}, true
}

func isTableHeader(seg string) bool {
	if tableHeaderRe.MatchString(seg) {
		return true
	}
	line := seg
	if i := strings.IndexByte(seg, '\n'); i >= 0 {
		line = seg[:i]
	}
	// Digits or "label: value" pairs mean the line carries data, not headings.
	if strings.IndexFunc(line, unicode.IsDigit) >= 0 || strings.Contains(line, ":") {
		return false
	}
	folded := veille.Fold(line)
	var hits int
	for _, w := range tableColumnWords {
		if strings.Contains(folded, w) {
			hits++
		}
	}
	return hits >= 2
}

func hasNonCommuneWord(name string) bool {
	for _, w := range strings.Fields(veille.Fold(name)) {
		if nonCommuneWords[strings.Trim(w, "'-")] {
			return true
		}
	}
	return false
}

// extractDetails pulls the optional structured fields from a segment.
func extractDetails(seg string) map[string]string {
	details := make(map[string]string)
	if m := parcelRe.FindStringSubmatch(seg); m != nil {
		details["parcel"] = strings.ReplaceAll(m[1], "'", "")
	}
	if m := addressRe.FindStringSubmatch(seg); m != nil {
		details["address"] = veille.CollapseSpace(m[1])
	}
	if m := projectTypeRe.FindStringSubmatch(seg); m != nil {
		details["project_type"] = strings.TrimRight(veille.CollapseSpace(m[1]), " ,")
	}
	if m := ownerRe.FindStringSubmatch(seg); m != nil {
		owner := veille.CollapseSpace(m[1])
		// "M. Dupont" keeps its initial; a sentence end does not.
		if i := strings.Index(owner, ". "); i > 2 {
			owner = owner[:i]
		}
		details["owner"] = strings.TrimRight(owner, ". ")
	}
	return details
}

func synthesizeTitle(commune string, t model.PublicationType, details map[string]string) string {
	if pt := details["project_type"]; pt != "" {
		return commune + " - " + capitalize(pt)
	}
	if parcel := details["parcel"]; parcel != "" {
		return commune + " - Parcelle " + parcel
	}
	return t.Label() + " - " + commune
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// truncate cuts s to max characters, marking the cut with "...".
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return s[:advanceRunes(s, 0, max)] + "..."
}

// advanceRunes returns the byte offset n characters after from, clamped to len(s).
func advanceRunes(s string, from, n int) int {
	i := from
	for count := 0; count < n && i < len(s); count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}
