// Package pdftext turns PDF bytes into plain text for the gazette parser.
package pdftext

import (
	"bytes"
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/veille/internal/config"
)

// ErrNotPDF is returned when the input lacks the %PDF- magic header.
var ErrNotPDF = eris.New("pdftext: input is not a PDF document")

var pdfMagic = []byte("%PDF-")

// Extractor extracts text content from PDF documents.
type Extractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.PDFConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("pdftext: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("pdftext: unknown provider %q", cfg.Provider)
	}
}

// checkMagic rejects input that is not a PDF. Leading whitespace before the
// header is tolerated, as some servers emit it.
func checkMagic(pdf []byte) error {
	if !bytes.HasPrefix(bytes.TrimLeft(pdf, " \t\r\n"), pdfMagic) {
		return ErrNotPDF
	}
	return nil
}
