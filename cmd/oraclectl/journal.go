package main

import (
	"github.com/spf13/cobra"

	"LLM-Oracle-Chain/internal/storage"
	"LLM-Oracle-Chain/internal/storage/mysql"
)

func newJournalCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recent finalizations recorded by the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg.Journal
			var (
				journal storage.Journal
				err     error
			)
			switch cfg.Driver {
			case "mysql":
				journal, err = mysql.NewSQLJournal(cmd.Context(), mysql.Config{DSN: cfg.DSN, MaxOpenConns: 1, MaxIdleConns: 1})
			default:
				journal, err = storage.NewFileJournal(cfg.DataDir)
			}
			if err != nil {
				return err
			}
			defer journal.Close()

			entries, err := journal.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []storage.Finalization{}
			}
			return printJSON(cmd, entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries")
	return cmd
}
