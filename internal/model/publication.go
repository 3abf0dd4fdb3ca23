package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Canton is a Swiss canton code covered by the veille pipeline.
type Canton string

const (
	CantonVD Canton = "VD"
	CantonGE Canton = "GE"
	CantonVS Canton = "VS"
	CantonFR Canton = "FR"
	CantonNE Canton = "NE"
	CantonJU Canton = "JU"
	CantonBE Canton = "BE"
	CantonTI Canton = "TI"
	CantonGR Canton = "GR"
)

// ErrInvalidCanton is returned when a canton code is outside the supported set.
var ErrInvalidCanton = eris.New("model: invalid canton")

// AllCantons returns all supported cantons.
func AllCantons() []Canton {
	return []Canton{
		CantonVD,
		CantonGE,
		CantonVS,
		CantonFR,
		CantonNE,
		CantonJU,
		CantonBE,
		CantonTI,
		CantonGR,
	}
}

// Valid reports whether c is one of the supported canton codes.
func (c Canton) Valid() bool {
	for _, known := range AllCantons() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCanton converts a case-insensitive code ("vd", " GE ") into a Canton.
func ParseCanton(s string) (Canton, error) {
	c := Canton(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", eris.Wrapf(ErrInvalidCanton, "%q", s)
	}
	return c, nil
}

// ParseCantons parses a list of codes, failing on the first invalid one.
func ParseCantons(codes []string) ([]Canton, error) {
	out := make([]Canton, 0, len(codes))
	for _, code := range codes {
		c, err := ParseCanton(code)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// PublicationType classifies the legal/administrative nature of a publication.
type PublicationType string

const (
	TypeMiseALEnquete          PublicationType = "MISE_A_LENQUETE"
	TypePermisConstruire       PublicationType = "PERMIS_CONSTRUIRE"
	TypeAvisOfficiel           PublicationType = "AVIS_OFFICIEL"
	TypeAutorisationConstruire PublicationType = "AUTORISATION_CONSTRUIRE"
	TypeOpposition             PublicationType = "OPPOSITION"
	TypeAppelDOffres           PublicationType = "APPEL_DOFFRES"
	TypeAutre                  PublicationType = "AUTRE"
)

// AllPublicationTypes returns all defined publication types.
func AllPublicationTypes() []PublicationType {
	return []PublicationType{
		TypeMiseALEnquete,
		TypePermisConstruire,
		TypeAvisOfficiel,
		TypeAutorisationConstruire,
		TypeOpposition,
		TypeAppelDOffres,
		TypeAutre,
	}
}

// Valid reports whether t is a defined publication type.
func (t PublicationType) Valid() bool {
	for _, known := range AllPublicationTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ParsePublicationType converts a string into a PublicationType.
func ParsePublicationType(s string) (PublicationType, error) {
	t := PublicationType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", eris.Errorf("model: unknown publication type %q", s)
	}
	return t, nil
}

// Label returns the French label used when a title has to be synthesized.
func (t PublicationType) Label() string {
	switch t {
	case TypeMiseALEnquete:
		return "Mise à l'enquête"
	case TypePermisConstruire:
		return "Permis de construire"
	case TypeAvisOfficiel:
		return "Avis officiel"
	case TypeAutorisationConstruire:
		return "Demande d'autorisation de construire"
	case TypeOpposition:
		return "Opposition"
	case TypeAppelDOffres:
		return "Appel d'offres"
	default:
		return "Publication"
	}
}

// Fallback commune names used when a source does not expose one.
const (
	CommuneUnknown  = "Non spécifiée"
	CommuneFribourg = "Fribourg"
)

// Metadata carries source-specific extras. Values are limited to strings,
// numbers, booleans and nil so they serialize cleanly to JSON columns.
type Metadata map[string]any

// Publication is the unified record every source scraper emits.
type Publication struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	URL         string          `json:"url"`
	Commune     string          `json:"commune"`
	Canton      Canton          `json:"canton"`
	Type        PublicationType `json:"type"`
	PublishedAt time.Time       `json:"published_at"`
	Metadata    Metadata        `json:"metadata,omitempty"`
}

// Key returns the in-run identity of the publication.
func (p Publication) Key() string {
	return p.URL + "-" + p.Commune
}

// Validate checks the record-level invariants.
func (p Publication) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return eris.New("model: publication title is empty")
	}
	if strings.TrimSpace(p.URL) == "" {
		return eris.Errorf("model: publication %q has no url", p.Title)
	}
	if !p.Canton.Valid() {
		return eris.Wrapf(ErrInvalidCanton, "publication %q: %q", p.Title, p.Canton)
	}
	if !p.Type.Valid() {
		return eris.Errorf("model: publication %q has unknown type %q", p.Title, p.Type)
	}
	if p.PublishedAt.IsZero() {
		return eris.Errorf("model: publication %q has no publication date", p.Title)
	}
	for k, v := range p.Metadata {
		switch v.(type) {
		case nil, string, bool, int, int32, int64, float32, float64:
		default:
			return eris.Errorf("model: publication %q metadata %q has unsupported type %T", p.Title, k, v)
		}
	}
	return nil
}
