package discovery

import (
	"context"
	"encoding/csv"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/report-kpi/internal/fetcher"
	"github.com/sells-group/report-kpi/internal/model"
)

// URLEntry is one row of the URL list: a document URL and the entity it
// belongs to.
type URLEntry struct {
	Company string
	URL     string
}

var urlListHeader = []string{"company", "url"}

// ReadURLList reads the semicolon separated URL list. A missing file is an
// empty list; rows without both fields are skipped.
func ReadURLList(ctx context.Context, path string) ([]URLEntry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "urllist: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		Delimiter:  ';',
		HasHeader:  true,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	var out []URLEntry
	line := 1
	for row := range rowCh {
		line++
		if len(row) < 2 || row[0] == "" || row[1] == "" {
			zap.L().Warn("urllist: skipping incomplete row",
				zap.String("path", path),
				zap.Int("line", line),
			)
			continue
		}
		out = append(out, URLEntry{Company: row[0], URL: row[1]})
	}
	if err := <-errCh; err != nil {
		return out, eris.Wrapf(err, "urllist: read %s", path)
	}
	return out, nil
}

// AppendURLList appends the entries not already listed and returns how
// many were added. The header is written when the file is new.
func AppendURLList(ctx context.Context, path string, entries []URLEntry) (int, error) {
	existing, err := ReadURLList(ctx, path)
	if err != nil {
		return 0, err
	}
	seen := make(map[URLEntry]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}

	var fresh []URLEntry
	for _, e := range entries {
		if e.Company == "" || e.URL == "" || seen[e] {
			continue
		}
		seen[e] = true
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, eris.Wrapf(err, "urllist: open %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, eris.Wrapf(err, "urllist: stat %s", path)
	}

	w := csv.NewWriter(f)
	w.Comma = ';'
	if st.Size() == 0 {
		_ = w.Write(urlListHeader)
	}
	for _, e := range fresh {
		_ = w.Write([]string{e.Company, e.URL})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return 0, eris.Wrapf(err, "urllist: write %s", path)
	}
	if err := f.Close(); err != nil {
		return 0, eris.Wrapf(err, "urllist: close %s", path)
	}
	return len(fresh), nil
}

// EntriesFromLinks converts discovered links to URL list rows.
func EntriesFromLinks(links []Link) []URLEntry {
	out := make([]URLEntry, 0, len(links))
	for _, l := range links {
		out = append(out, URLEntry{Company: l.Entity, URL: l.URL})
	}
	return out
}

// GroupRefs groups URL list rows into document references per entity,
// keeping list order. Entity names are returned in first-seen order.
func GroupRefs(entries []URLEntry) (map[string][]model.DocumentRef, []string) {
	refs := make(map[string][]model.DocumentRef)
	var order []string
	for _, e := range entries {
		if _, ok := refs[e.Company]; !ok {
			order = append(order, e.Company)
		}
		refs[e.Company] = append(refs[e.Company], model.NewDocumentRef(e.Company, e.URL))
	}
	return refs, order
}
