package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/report-kpi/internal/kpi"
	"github.com/sells-group/report-kpi/internal/store"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List stored consolidated KPI records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		company, _ := cmd.Flags().GetString("company")
		recs, err := st.ListRecords(ctx, company)
		if err != nil {
			return eris.Wrap(err, "records list")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No records found.")
			return nil
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(recs)
		}
		formatRecords(os.Stdout, recs)
		return nil
	},
}

func init() {
	recordsCmd.Flags().String("company", "", "only show this company")
	recordsCmd.Flags().Bool("json", false, "print full records as JSON")
	rootCmd.AddCommand(recordsCmd)
}

// formatRecords writes a summary row per stored record to out.
func formatRecords(out io.Writer, recs []store.StoredRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMPANY\tPERIOD\tREVENUE\tEBITDA\tUPDATED")
	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Key.Company,
			r.Key.Period(),
			cell(r.Record, kpi.KeyRevenue),
			cell(r.Record, kpi.KeyEBITDA),
			r.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// cell renders one record value for a table, "-" when unknown.
func cell(r kpi.Record, key string) string {
	v, ok := r.Get(key)
	if !ok || v.IsNull() {
		return "-"
	}
	if s, ok := v.Text(); ok {
		return s
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return "?"
	}
	return string(raw)
}
