package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgecrew/ralph/internal/store"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect ralph's process-wide settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings as JSON",
	Run: func(cmd *cobra.Command, args []string) {
		var settings store.Settings
		if err := apiGet("/api/settings", &settings); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(settings)
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	rootCmd.AddCommand(settingsCmd)
}
