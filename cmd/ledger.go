package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and seed the processed-documents ledger",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every processed document identifier",
	RunE: func(cmd *cobra.Command, _ []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		for _, id := range l.IDs() {
			fmt.Fprintln(os.Stdout, id)
		}
		return nil
	},
}

var ledgerMarkCmd = &cobra.Command{
	Use:   "mark <id>...",
	Short: "Mark documents as processed so analysis skips them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		added := 0
		for _, id := range args {
			if l.Mark(id) {
				added++
			}
		}
		if err := l.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%d added, %d already present\n", added, len(args)-added)
		return nil
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerMarkCmd)
	rootCmd.AddCommand(ledgerCmd)
}
