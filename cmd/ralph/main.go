package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// serverAddr is the base URL the project/settings subcommands talk to; it
// is a thin HTTP client against whatever process is running `ralph serve`.
var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "ralph",
	Short: "Run and control the ralph build orchestrator",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:3000", "address of a running ralph serve process")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
