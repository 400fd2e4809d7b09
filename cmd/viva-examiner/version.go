package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of viva-examiner",
	// Skip config, secrets, and logger setup.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("viva-examiner %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
