package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Вывести сводку медиатеки: заполненность, освобождённое место, диск",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), os.Stderr, modeReadOnly)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.library.Stats(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}
