package main

import (
	"github.com/iwvelando/lotbid/internal/store"
	"github.com/iwvelando/lotbid/pkg/output"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded optimize and evaluate runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.dbPath == "" {
				return eris.New("history requires --db or storage.path")
			}
			db, err := store.Open(a.dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return output.HistoryTable(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}
