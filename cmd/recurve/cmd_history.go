package main

import (
	"fmt"

	"github.com/siherrmann/recurve"
	"github.com/siherrmann/recurve/model"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historySearch string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded retrievals",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRecurve()
		if err != nil {
			return err
		}
		defer r.Close()

		records, err := listRecords(r)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No recorded retrievals.")
			return nil
		}

		for _, record := range records {
			partial := ""
			if record.Partial {
				partial = " (partial)"
			}
			fmt.Printf("%s  %s  depth=%d results=%d %dms%s\n",
				record.CreatedAt.Format("2006-01-02 15:04:05"),
				record.Query,
				record.DepthUsed,
				record.FinalResults,
				record.ExecutionMs,
				partial,
			)
		}

		return nil
	},
}

func listRecords(r *recurve.Recurve) ([]*model.RetrievalRecord, error) {
	if historySearch != "" {
		return r.Retrievals.SelectRetrievalsByQuery(historySearch, historyLimit)
	}
	return r.Retrievals.SelectRecentRetrievals(historyLimit)
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of records to list")
	historyCmd.Flags().StringVarP(&historySearch, "search", "s", "", "filter records by query text")
}
