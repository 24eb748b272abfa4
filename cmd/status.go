package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/report-kpi/internal/corpus"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List documents on disk and whether they were analyzed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("base"); err != nil {
			return err
		}
		l, err := openLedger()
		if err != nil {
			return err
		}

		only, _ := cmd.Flags().GetString("entity")
		entities, err := selectEntities(cfg.Paths.PDFRoot, only)
		if err != nil {
			return err
		}

		docs := make(map[string][]corpus.Document, len(entities))
		for _, e := range entities {
			d, err := corpus.Documents(cfg.Paths.PDFRoot, e, l)
			if err != nil {
				return err
			}
			docs[e] = d
		}

		if len(entities) == 0 {
			fmt.Fprintln(os.Stderr, "No documents found.")
			return nil
		}
		formatStatus(os.Stdout, entities, docs)
		return nil
	},
}

func init() {
	statusCmd.Flags().String("entity", "", "only show this entity")
	rootCmd.AddCommand(statusCmd)
}

// formatStatus writes one row per document, grouped by entity in order.
func formatStatus(out io.Writer, entities []string, docs map[string][]corpus.Document) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ENTITY\tDOCUMENT\tPROCESSED")
	pending := 0
	for _, e := range entities {
		for _, d := range docs[e] {
			mark := "yes"
			if !d.Processed {
				mark = "no"
				pending++
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e, d.Filename, mark)
		}
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\n%d document(s) awaiting analysis\n", pending)
}
