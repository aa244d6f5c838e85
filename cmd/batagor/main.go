// Точка входа batagor — менеджера жизненного цикла временных медиа.
//
// Все процессы (демон serve, разовые sweep/widget/stats/reconcile/seed)
// работают с одним общим контейнером BT_CONTAINER_DIR.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ADA-Batagor/batagor/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "batagor",
		Short: "Менеджер жизненного цикла временных фото и видео",
		Long: `batagor хранит снимки с ограниченным сроком жизни, ограничивает
размер медиатеки и удаляет истёкшие записи вместе с файлами.

Конфигурация задаётся переменными окружения BT_* или файлом .env.

Examples:
  # Демон: планировщик очистки, сверка и локальный HTTP API
  batagor serve

  # Разовая очистка (запускается планировщиком платформы)
  batagor sweep

  # Лента виджета в JSON
  batagor widget --limit 4`,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSweepCmd(),
		newWidgetCmd(),
		newStatsCmd(),
		newReconcileCmd(),
		newSeedCmd(),
	)
	return rootCmd
}
