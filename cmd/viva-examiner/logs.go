package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/viva-examiner/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent entries from the log file, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("level")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := logging.ReadEntries(cfg.Log.File, level, limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(os.Stdout, "%s  %-5s  %-10s  %s", e.Timestamp, e.Level, e.Logger, e.Message)
			for k, v := range e.Fields {
				fmt.Fprintf(os.Stdout, "  %s=%v", k, v)
			}
			fmt.Fprintln(os.Stdout)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().String("level", "", "only show entries at this level")
	logsCmd.Flags().Int("limit", 50, "maximum entries to show")
	rootCmd.AddCommand(logsCmd)
}
