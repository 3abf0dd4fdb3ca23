package fetcher

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// DecodeHTML transcodes a fetched page to UTF-8. The encoding is sniffed from
// the BOM, the contentType hint and any <meta charset> in the first 1024
// bytes. Cantonal sites still serve windows-1252 pages.
func DecodeHTML(data []byte, contentType string) ([]byte, error) {
	enc, name, _ := charset.DetermineEncoding(data, contentType)
	if name == "utf-8" {
		return data, nil
	}
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: decode %s", name)
	}
	return out, nil
}

// ResolveURL resolves href against base. It returns "" when either fails to
// parse or href is empty.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}
