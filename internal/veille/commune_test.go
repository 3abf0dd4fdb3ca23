package veille

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/veille/internal/model"
)

func TestNormalizeCommune(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"SAINT-MAURICE", "Saint-Maurice"},
		{"saint-maurice", "Saint-Maurice"},
		{"Commune de Bulle", "Bulle"},
		{"COMMUNE DE VILLARS-SUR-GLÂNE", "Villars-Sur-Glâne"},
		{"Ville de Fribourg", "Fribourg"},
		{"commune d'Estavayer", "Estavayer"},
		{"De Bulle", "Bulle"},
		{"de la Tour-de-Trême", "De La Tour-De-Trême"},
		{"Le Mouret Route", "Le Mouret"},
		{"Gibloux La", "Gibloux"},
		{"Belmont-Broye Chemin Du", "Belmont-Broye"},
		{"  delémont  ", "Delémont"},
		{"", model.CommuneUnknown},
		{"Commune de", model.CommuneUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCommune(tt.input))
		})
	}
}

func TestNormalizeCommune_NeverKeepsPrefix(t *testing.T) {
	for _, raw := range []string{"Commune de Sion", "VILLE DE NEUCHÂTEL", "commune de Nyon"} {
		got := NormalizeCommune(raw)
		assert.NotContains(t, Fold(got), "commune")
		assert.NotContains(t, Fold(got), "ville de")
	}
}

func TestStripCommunePrefix(t *testing.T) {
	assert.Equal(t, "Sion", StripCommunePrefix("Commune de Sion"))
	assert.Equal(t, "Sion", StripCommunePrefix("  VILLE DE Sion"))
	assert.Equal(t, "Communes réunies", StripCommunePrefix("Communes réunies"))
}
