package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forgecrew/ralph/internal/store"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Create and control projects on a running ralph serve",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <id> <path>",
	Short: "Create a new project",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		prdFile, _ := cmd.Flags().GetString("prd")

		body := map[string]any{"name": args[0], "path": args[1]}
		if prdFile != "" {
			data, err := os.ReadFile(prdFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: reading %s: %v\n", prdFile, err)
				os.Exit(1)
			}
			body["prd"] = json.RawMessage(data)
		}

		var proj store.Project
		if err := apiPost("/api/projects", body, &proj); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s created project %s at %s\n", green("✓"), proj.ID, proj.RootPath)
	},
}

var projectStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start a project's pipeline",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := apiPost(fmt.Sprintf("/api/projects/%s/start", args[0]), nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s started %s\n", green("✓"), args[0])
	},
}

var projectStopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Stop a project's pipeline",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := apiPost(fmt.Sprintf("/api/projects/%s/stop", args[0]), nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s stopped %s\n", green("✓"), args[0])
	},
}

var projectInitCmd = &cobra.Command{
	Use:   "init <id>",
	Short: "Materialise a project's workspace and make the initial commit",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := apiPost(fmt.Sprintf("/api/projects/%s/init", args[0]), nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s initialized %s\n", green("✓"), args[0])
	},
}

func init() {
	projectCreateCmd.Flags().String("prd", "", "path to a JSON file containing the initial plan")
	projectCmd.AddCommand(projectCreateCmd, projectStartCmd, projectStopCmd, projectInitCmd)
	rootCmd.AddCommand(projectCmd)
}
