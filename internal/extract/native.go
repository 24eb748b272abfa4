package extract

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Native reads page text in-process with github.com/ledongthuc/pdf.
type Native struct{}

var _ PageReader = Native{}

// NewNative returns the in-process page reader.
func NewNative() Native { return Native{} }

// ReadPages opens the document and reads each page independently. The
// library panics on some corrupt streams; a panic costs only that page.
func (Native) ReadPages(ctx context.Context, path string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = eris.Errorf("extract: panic opening %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	n := r.NumPage()
	pages = make([]string, n)
	for i := 1; i <= n; i++ {
		if ctx.Err() != nil {
			return pages, nil
		}
		text, pageErr := nativePage(r, i)
		if pageErr != nil {
			zap.L().Debug("extract: unreadable page",
				zap.String("path", path),
				zap.Int("page", i),
				zap.Error(pageErr),
			)
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}

func nativePage(r *pdf.Reader, i int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("panic reading page %d: %v", i, rec)
		}
	}()
	page := r.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
