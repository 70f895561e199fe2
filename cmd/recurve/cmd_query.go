package main

import (
	"fmt"
	"strings"

	"github.com/siherrmann/recurve/core/retrieval"
	"github.com/siherrmann/recurve/llm"
	"github.com/siherrmann/recurve/model"
	"github.com/spf13/cobra"
)

var (
	queryTopic  string
	queryReport bool
	queryRecord bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Run a recursive retrieval over the stored documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRecurve()
		if err != nil {
			return err
		}
		defer r.Close()

		if config.LLM.Enabled {
			llmConfig, err := llm.ConfigFromEnv()
			if err != nil {
				return err
			}
			if config.LLM.BaseURL != "" {
				llmConfig.BaseURL = config.LLM.BaseURL
			}
			if config.LLM.Model != "" {
				llmConfig.Model = config.LLM.Model
			}

			client, err := llm.NewOpenAIClient(llmConfig, nil)
			if err != nil {
				return err
			}
			if err := r.UseModelBackedSubQueries(client); err != nil {
				return err
			}
		}

		query := strings.Join(args, " ")
		options := &retrieval.Options{
			Topic:        queryTopic,
			ReturnReport: queryReport,
		}

		var candidates []*model.Candidate
		var report *model.Report

		if queryRecord {
			var record *model.RetrievalRecord
			candidates, record, err = r.RetrieveAndRecord(cmd.Context(), query, options)
			if err != nil {
				return err
			}
			fmt.Printf("Recorded retrieval %s\n", record.RID)
		} else {
			candidates, report, err = r.Retrieve(cmd.Context(), query, options)
			if err != nil {
				return err
			}
		}

		printCandidates(candidates)
		if report != nil {
			printReport(report)
		}

		return nil
	},
}

func init() {
	queryCmd.Flags().StringVarP(&queryTopic, "topic", "t", "", "topic to scope the search to")
	queryCmd.Flags().BoolVarP(&queryReport, "report", "r", false, "print the retrieval report and query tree")
	queryCmd.Flags().BoolVar(&queryRecord, "record", false, "persist a record of the retrieval")
}

func printCandidates(candidates []*model.Candidate) {
	if len(candidates) == 0 {
		fmt.Println("No results.")
		return
	}

	for i, candidate := range candidates {
		fmt.Printf("%2d. [%.3f] %s\n", i+1, candidate.Score, candidate.Content)
		if candidate.Origin != "" {
			fmt.Printf("      origin: %s (depth %d)\n", candidate.Origin, candidate.RetrievalDepth)
		}
	}
}

func printReport(report *model.Report) {
	fmt.Println()
	fmt.Printf("Depth used:      %d\n", report.RecursionDepthUsed)
	fmt.Printf("Total results:   %d\n", report.TotalResults)
	fmt.Printf("Final results:   %d\n", report.FinalResults)
	fmt.Printf("Execution time:  %s\n", report.ExecutionTime)
	if report.Partial {
		fmt.Println("Partial:         yes")
	}
	if report.Tree != nil {
		fmt.Println("Query tree:")
		report.Tree.Walk(func(node *model.RecursionNode) {
			indent := strings.Repeat("  ", node.Depth-1)
			fmt.Printf("  %s- %q (%s, %d results)\n", indent, node.Query, node.Status, node.Results)
		})
	}
}
