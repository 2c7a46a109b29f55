package commands

import (
	"github.com/spf13/cobra"
)

var cfgPath string

func Execute() error {
	return newRoot().Execute()
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "remindbot",
		Short:         "Personal reminder bot for Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.json", "path to config (json or yaml)")
	root.AddCommand(runCmd(), scheduleCmd(), configCmd())
	return root
}
