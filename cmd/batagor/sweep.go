package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Однократно удалить истёкшие записи и вывести итог в JSON",
		Long: `Выполняет один проход очистки над общим контейнером.

Команда предназначена для фонового запуска платформой (cron, systemd timer)
и безопасна при одновременной работе демона serve.`,
		RunE: runSweep,
	}
}

func runSweep(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), os.Stderr, modeReadWrite)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.sweeper.Sweep(cmd.Context(), time.Now())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}
