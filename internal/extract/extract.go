// Package extract turns report PDFs into plain text, one page at a time.
package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/report-kpi/internal/config"
)

// PageReader returns the text of every page of the PDF at path, in document
// order. A page that cannot be read is returned as "". An error means the
// document as a whole could not be opened.
type PageReader interface {
	ReadPages(ctx context.Context, path string) ([]string, error)
}

// Extractor produces the text of a document from its readable pages.
type Extractor struct {
	reader PageReader
}

// New wraps a PageReader.
func New(r PageReader) *Extractor {
	return &Extractor{reader: r}
}

// Extract returns the non-blank pages joined with "\n". Unreadable pages are
// left out without a placeholder, and a document that cannot be opened
// yields "". Extraction problems are logged, never returned.
func (e *Extractor) Extract(ctx context.Context, path string) string {
	pages, err := e.reader.ReadPages(ctx, path)
	if err != nil {
		zap.L().Warn("extract: cannot read document",
			zap.String("path", path),
			zap.Error(err),
		)
		return ""
	}
	text, skipped := JoinPages(pages)
	if skipped > 0 {
		zap.L().Info("extract: skipped pages without text",
			zap.String("path", path),
			zap.Int("pages", len(pages)),
			zap.Int("skipped", skipped),
		)
	}
	return text
}

// JoinPages joins non-blank pages with "\n" and reports how many were
// dropped.
func JoinPages(pages []string) (string, int) {
	kept := make([]string, 0, len(pages))
	for _, p := range pages {
		p = strings.TrimRight(p, "\n\f")
		if strings.TrimSpace(p) == "" {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "\n"), len(pages) - len(kept)
}

// NewPageReader builds the PageReader selected by cfg.Provider.
func NewPageReader(cfg config.ExtractConfig) (PageReader, error) {
	switch cfg.Provider {
	case "native", "":
		return NewNative(), nil
	case "pdftotext":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralAPIKey == "" {
			return nil, eris.New("extract: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralAPIKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("extract: unknown provider %q", cfg.Provider)
	}
}
