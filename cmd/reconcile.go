package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/sells-group/report-kpi/internal/kpi"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <a.json> <b.json>",
	Short: "Merge two KPI records for the same company and quarter",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		merged, err := reconcileFiles(args[0], args[1])
		if err != nil {
			return err
		}

		raw, err := merged.MarshalJSON()
		if err != nil {
			return err
		}
		out := pretty.PrettyOptions(raw, &pretty.Options{Width: 80, Indent: "  "})

		if path, _ := cmd.Flags().GetString("out"); path != "" {
			if err := os.WriteFile(path, out, 0o644); err != nil {
				return eris.Wrapf(err, "reconcile: write %s", path)
			}
			return nil
		}
		if color, _ := cmd.Flags().GetBool("color"); color {
			out = pretty.Color(out, nil)
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

func init() {
	reconcileCmd.Flags().String("out", "", "write the merged record to this file instead of stdout")
	reconcileCmd.Flags().Bool("color", false, "colorize terminal output")
	rootCmd.AddCommand(reconcileCmd)
}

// reconcileFiles merges the records in a and b. Records that name
// different companies or periods are refused.
func reconcileFiles(a, b string) (kpi.Record, error) {
	ra, err := readRecord(a)
	if err != nil {
		return kpi.Record{}, err
	}
	rb, err := readRecord(b)
	if err != nil {
		return kpi.Record{}, err
	}

	ca, okA := ra.Company()
	cb, okB := rb.Company()
	if okA && okB && ca != cb {
		return kpi.Record{}, eris.Errorf("reconcile: company %q differs from %q", ca, cb)
	}
	pa, okA := ra.Period()
	pb, okB := rb.Period()
	if okA && okB && pa != pb {
		return kpi.Record{}, eris.Errorf("reconcile: period %s differs from %s", pa, pb)
	}

	return kpi.Reconcile(ra, rb), nil
}

func readRecord(path string) (kpi.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return kpi.Record{}, eris.Wrapf(err, "reconcile: read %s", path)
	}
	var r kpi.Record
	if err := r.UnmarshalJSON(data); err != nil {
		return kpi.Record{}, eris.Wrapf(err, "reconcile: decode %s", path)
	}
	return r, nil
}
