package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHTML_UTF8Passthrough(t *testing.T) {
	in := []byte(`<html><head><meta charset="utf-8"></head><body>Marchés publics</body></html>`)
	out, err := DecodeHTML(in, "text/html; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeHTML_Windows1252Meta(t *testing.T) {
	// "Marchés" with é encoded as 0xE9.
	in := []byte("<html><head><meta charset=\"windows-1252\"></head><body>March\xe9s</body></html>")
	out, err := DecodeHTML(in, "")
	require.NoError(t, err)
	assert.Contains(t, string(out), "Marchés")
}

func TestDecodeHTML_ContentTypeHint(t *testing.T) {
	in := []byte("<p>Enqu\xeate publique</p>")
	out, err := DecodeHTML(in, "text/html; charset=iso-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "<p>Enquête publique</p>", string(out))
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"https://www.jura.ch/fr/marches.html", "/doc/1.pdf", "https://www.jura.ch/doc/1.pdf"},
		{"https://www.jura.ch/fr/", "avis.html", "https://www.jura.ch/fr/avis.html"},
		{"https://www.jura.ch", "https://other.ch/x", "https://other.ch/x"},
		{"https://www.jura.ch", "  ", ""},
		{"https://www.jura.ch", "http://[::1", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveURL(tt.base, tt.href), tt.href)
	}
}
