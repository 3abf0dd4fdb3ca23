package veille

import (
	"strings"

	"github.com/sells-group/veille/internal/model"
)

// TypeRule maps any of its keywords to a publication type.
type TypeRule struct {
	Type     model.PublicationType
	Keywords []string
}

// Classify returns the type of the first rule with a keyword contained in
// text, or fallback. Rules are evaluated in order; matching is folded.
func Classify(text string, rules []TypeRule, fallback model.PublicationType) model.PublicationType {
	folded := Fold(text)
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(folded, Fold(kw)) {
				return rule.Type
			}
		}
	}
	return fallback
}
