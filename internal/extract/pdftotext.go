package extract

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PdfToText reads pages with the poppler pdftotext CLI, one process per page
// so a page that makes the tool fail does not take the others with it.
type PdfToText struct {
	binPath    string
	countPages func(path string) (int, error)
}

var _ PageReader = (*PdfToText)(nil)

// NewPdfToText creates a PdfToText reader. If binPath is empty, "pdftotext"
// is looked up on PATH.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath, countPages: api.PageCountFile}
}

// ReadPages counts pages with pdfcpu and extracts each one. When the count
// is unavailable the whole document is converted once and split on form
// feeds, which pdftotext emits after every page.
func (p *PdfToText) ReadPages(ctx context.Context, path string) ([]string, error) {
	n, err := p.countPages(path)
	if err != nil || n <= 0 {
		zap.L().Debug("extract: page count unavailable, converting whole document",
			zap.String("path", path),
			zap.Error(err),
		)
		out, runErr := p.run(ctx, path)
		if runErr != nil {
			return nil, runErr
		}
		pages := strings.Split(out, "\f")
		if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
			pages = pages[:len(pages)-1]
		}
		return pages, nil
	}

	pages := make([]string, n)
	for i := 1; i <= n; i++ {
		if ctx.Err() != nil {
			return pages, nil
		}
		page := strconv.Itoa(i)
		out, runErr := p.run(ctx, path, "-f", page, "-l", page)
		if runErr != nil {
			zap.L().Debug("extract: unreadable page",
				zap.String("path", path),
				zap.Int("page", i),
				zap.Error(runErr),
			)
			continue
		}
		pages[i-1] = out
	}
	return pages, nil
}

func (p *PdfToText) run(ctx context.Context, path string, extra ...string) (string, error) {
	args := append([]string{"-layout", "-enc", "UTF-8"}, extra...)
	args = append(args, path, "-")
	cmd := exec.CommandContext(ctx, p.binPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "extract: pdftotext failed for %s: %s", path, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
