package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/report-kpi/internal/acquire"
	"github.com/sells-group/report-kpi/internal/discovery"
	"github.com/sells-group/report-kpi/internal/fetcher"
	"github.com/sells-group/report-kpi/internal/model"
	"github.com/sells-group/report-kpi/internal/monitoring"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Download the documents in the URL list",
	Long:  "Downloads every URL list entry not already on disk into <pdf_root>/<entity>/. Entities run in parallel, documents of one entity one after another.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("acquire"); err != nil {
			return err
		}

		entries, err := discovery.ReadURLList(ctx, cfg.Paths.URLList)
		if err != nil {
			return err
		}
		groups, order := discovery.GroupRefs(entries)
		if only, _ := cmd.Flags().GetString("entity"); only != "" {
			if _, ok := groups[only]; !ok {
				return eris.Errorf("acquire: no URLs listed for %q", only)
			}
			order = []string{only}
		}

		mux := fetcher.NewMux(newHTTPFetcher(cfg), fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: fetchTimeout(cfg)}))
		a := acquire.New(cfg.Paths.PDFRoot, mux, fetchTimeout(cfg))

		sum, err := acquireEntities(ctx, a, groups, order, cfg.Batch.MaxConcurrentEntities)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "downloaded %d, already present %d, failed %d\n",
			sum.Downloaded.Load(), sum.Present.Load(), sum.Failed.Load())

		monitoring.NewAlerter(cfg.Alerts).Notify(ctx, sum.snapshot(len(order)))
		return nil
	},
}

func init() {
	acquireCmd.Flags().String("entity", "", "only acquire documents for this entity")
	rootCmd.AddCommand(acquireCmd)
}

// acquireSummary counts acquisition outcomes across entities.
type acquireSummary struct {
	Downloaded atomic.Int64
	Present    atomic.Int64
	Failed     atomic.Int64
}

func (s *acquireSummary) snapshot(entities int) monitoring.RunSnapshot {
	return monitoring.RunSnapshot{
		Command:         "acquire",
		Entities:        entities,
		Documents:       int(s.Downloaded.Load() + s.Present.Load() + s.Failed.Load()),
		DocumentsFailed: int(s.Failed.Load()),
	}
}

// acquireEntities downloads each entity's documents, at most concurrency
// entities at a time. A failed document never aborts the batch.
func acquireEntities(ctx context.Context, a *acquire.Acquirer, groups map[string][]model.DocumentRef, order []string, concurrency int) (*acquireSummary, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	sum := &acquireSummary{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, entity := range order {
		refs := groups[entity]
		g.Go(func() error {
			log := zap.L().With(zap.String("entity", entity))
			for _, res := range a.AcquireAll(gctx, refs) {
				switch res.Status {
				case model.AcquireDownloaded:
					sum.Downloaded.Add(1)
				case model.AcquireAlreadyPresent:
					sum.Present.Add(1)
				default:
					sum.Failed.Add(1)
				}
			}
			log.Info("acquire: entity done", zap.Int("documents", len(refs)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return sum, eris.Wrap(err, "acquire: batch")
	}
	if err := ctx.Err(); err != nil {
		return sum, eris.Wrap(err, "acquire: interrupted")
	}
	return sum, nil
}
