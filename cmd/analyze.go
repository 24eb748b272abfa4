package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/report-kpi/internal/extract"
	"github.com/sells-group/report-kpi/internal/model"
	"github.com/sells-group/report-kpi/internal/monitoring"
	"github.com/sells-group/report-kpi/internal/oracle"
	"github.com/sells-group/report-kpi/internal/pipeline"
	"github.com/sells-group/report-kpi/pkg/anthropic"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Extract KPIs from documents not yet analyzed",
	Long:  "For each entity, combines the text of documents missing from the ledger, asks the model for the KPI record, reconciles it with the stored record for the same quarter and commits the ledger. Entities run one after another.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		year, _ := cmd.Flags().GetInt("year")
		quarter, _ := cmd.Flags().GetInt("quarter")
		fallback, err := fallbackPeriod(year, quarter, time.Now())
		if err != nil {
			return err
		}

		instructions, err := oracle.LoadInstructions(cfg.Paths.Instructions)
		if err != nil {
			return err
		}

		reader, err := extract.NewPageReader(cfg.Extract)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		l, err := openLedger()
		if err != nil {
			return err
		}

		o := oracle.NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), instructions, cfg.Anthropic)
		p := pipeline.New(cfg, extract.New(reader), o, st, l)

		only, _ := cmd.Flags().GetString("entity")
		entities, err := selectEntities(cfg.Paths.PDFRoot, only)
		if err != nil {
			return err
		}
		if len(entities) == 0 {
			zap.L().Info("analyze: no entity directories", zap.String("pdf_root", cfg.Paths.PDFRoot))
			return nil
		}

		results, runErr := p.RunAll(ctx, entities, fallback)
		formatAnalyzeResults(os.Stdout, results)

		monitoring.NewAlerter(cfg.Alerts).Notify(ctx, analyzeSnapshot(len(entities), results, o.SpentUSD()))
		return runErr
	},
}

func init() {
	analyzeCmd.Flags().String("entity", "", "only analyze this entity")
	analyzeCmd.Flags().Int("year", 0, "fiscal year used when a report states none")
	analyzeCmd.Flags().Int("quarter", 0, "quarter (1-4) used when a report states none")
	rootCmd.AddCommand(analyzeCmd)
}

// fallbackPeriod resolves the --year/--quarter flags. Without them the
// quarter before now is used, since reports describe a closed quarter.
func fallbackPeriod(year, quarter int, now time.Time) (model.Period, error) {
	prev := model.CurrentPeriod(now).Previous()
	if year == 0 && quarter == 0 {
		return prev, nil
	}
	p := model.Period{Year: year, Quarter: quarter}
	if p.Year == 0 {
		p.Year = prev.Year
	}
	if !p.Valid() {
		return model.Period{}, eris.Errorf("analyze: invalid period year=%d quarter=%d", year, quarter)
	}
	return p, nil
}

// analyzeSnapshot summarizes a run for alerting. Entities without a result
// failed.
func analyzeSnapshot(entities int, results []*pipeline.Result, cost float64) monitoring.RunSnapshot {
	snap := monitoring.RunSnapshot{
		Command:        "analyze",
		Entities:       entities,
		EntitiesFailed: entities - len(results),
		CostUSD:        cost,
	}
	for _, r := range results {
		snap.Documents += len(r.Documents)
	}
	return snap
}

// formatAnalyzeResults writes one row per analyzed entity to out.
func formatAnalyzeResults(out io.Writer, results []*pipeline.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ENTITY\tPERIOD\tDOCUMENTS\tSKIPPED\tRECONCILED\tOUTPUT")
	for _, r := range results {
		if !r.Analyzed() {
			_, _ = fmt.Fprintf(w, "%s\t-\t0\t%d\t-\t-\n", r.Entity, len(r.Skipped))
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%t\t%s\n",
			r.Entity, r.Key.Period(), len(r.Documents), len(r.Skipped), r.Reconciled, r.OutputPath)
	}
	_ = w.Flush()
}
