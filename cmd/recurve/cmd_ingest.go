package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/siherrmann/recurve/model"
	"github.com/spf13/cobra"
)

var ingestTopic string

var ingestCmd = &cobra.Command{
	Use:   "ingest [file or directory ...]",
	Short: "Ingest documents into the retrieval store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRecurve()
		if err != nil {
			return err
		}
		defer r.Close()

		var paths []string
		for _, arg := range args {
			info, err := os.Stat(arg)
			if err != nil {
				return err
			}
			if info.IsDir() {
				entries, err := os.ReadDir(arg)
				if err != nil {
					return err
				}
				for _, entry := range entries {
					if !entry.IsDir() {
						paths = append(paths, filepath.Join(arg, entry.Name()))
					}
				}
			} else {
				paths = append(paths, arg)
			}
		}

		for _, path := range paths {
			doc, err := model.NewDocumentFromFile(path, ingestTopic, nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			numChunks, err := r.ProcessAndInsertDocument(doc)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", path, err)
			}

			fmt.Printf("Ingested %s: %d chunks (document %s)\n", path, numChunks, doc.RID)
		}

		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestTopic, "topic", "t", "", "topic to scope the documents under")
}
