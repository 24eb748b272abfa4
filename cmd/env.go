package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/report-kpi/internal/config"
	"github.com/sells-group/report-kpi/internal/corpus"
	"github.com/sells-group/report-kpi/internal/fetcher"
	"github.com/sells-group/report-kpi/internal/ledger"
	"github.com/sells-group/report-kpi/internal/store"
)

// newHTTPFetcher builds the HTTP fetcher shared by discovery and downloads.
func newHTTPFetcher(c *config.Config) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         c.Fetch.UserAgent,
		Timeout:           fetchTimeout(c),
		MaxRetries:        c.Fetch.MaxRetries,
		RequestsPerSecond: c.Fetch.RequestsPerSecond,
	})
}

func fetchTimeout(c *config.Config) time.Duration {
	return time.Duration(c.Fetch.TimeoutSecs) * time.Second
}

// initStore opens the configured record store. Callers must Close it.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// openLedger loads the processed-documents ledger.
func openLedger() (*ledger.FileLedger, error) {
	l, err := ledger.Open(cfg.Paths.Ledger)
	if err != nil {
		return nil, eris.Wrap(err, "open ledger")
	}
	return l, nil
}

// selectEntities returns only when it is set, else every entity directory
// under the PDF root.
func selectEntities(root, only string) ([]string, error) {
	if only != "" {
		return []string{only}, nil
	}
	names, err := corpus.Entities(root)
	if err != nil {
		return nil, eris.Wrap(err, "list entities")
	}
	return names, nil
}
