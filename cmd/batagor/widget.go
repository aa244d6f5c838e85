package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newWidgetCmd() *cobra.Command {
	var (
		limit          int
		omitThumbnails bool
	)

	cmd := &cobra.Command{
		Use:   "widget",
		Short: "Вывести ленту виджета в JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), os.Stderr, modeReadOnly)
			if err != nil {
				return err
			}
			defer a.Close()

			if limit <= 0 {
				limit = a.cfg.WidgetLimit
			}
			tl, err := a.library.Widget(cmd.Context(), time.Now(), limit)
			if err != nil {
				return err
			}
			if omitThumbnails {
				for i := range tl.Entries {
					tl.Entries[i].Thumbnail = nil
				}
			}
			return printJSON(cmd.OutOrStdout(), tl)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Число записей (по умолчанию BT_WIDGET_LIMIT)")
	cmd.Flags().BoolVar(&omitThumbnails, "omit-thumbnails", false, "Не включать содержимое миниатюр")
	return cmd
}
