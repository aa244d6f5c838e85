package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Сверить базу с файлами контейнера и удалить осиротевшие файлы",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), os.Stderr, modeReadWrite)
			if err != nil {
				return err
			}
			defer a.Close()

			report, skipped, err := a.reconciler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			if skipped {
				return errors.New("сверка уже выполняется")
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}
