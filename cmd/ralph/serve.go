package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forgecrew/ralph/internal/approval"
	"github.com/forgecrew/ralph/internal/broadcast"
	"github.com/forgecrew/ralph/internal/chatbridge"
	"github.com/forgecrew/ralph/internal/config"
	"github.com/forgecrew/ralph/internal/httpapi"
	"github.com/forgecrew/ralph/internal/llm"
	"github.com/forgecrew/ralph/internal/ralphlog"
	"github.com/forgecrew/ralph/internal/registry"
	"github.com/forgecrew/ralph/internal/store"
	"github.com/forgecrew/ralph/internal/syntax"
	"github.com/forgecrew/ralph/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ralph HTTP/WS server and resume any projects left running",
	Long: `Start the HTTP/WebSocket API, resume any project that was in
running status when the process last stopped, and serve requests until
SIGINT or SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		dbPath, _ := cmd.Flags().GetString("db")

		ralphlog.Setup("info")

		st, err := store.Open(dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: opening store: %v\n", err)
			os.Exit(1)
		}

		settings, err := st.GetSettings(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: loading settings: %v\n", err)
			os.Exit(1)
		}

		var bridge approval.Bridge
		if settings.Chat.Enabled {
			bridge = chatbridge.NewPollBridge("", settings.Chat.ChatID)
		}

		cfg := config.Load()
		hub := broadcast.New()
		llmClient := llm.New(cfg, llm.RetryConfig{})

		if err := st.SetLLMInfo(context.Background(), store.LLMInfo{
			Provider: string(cfg.Provider),
			Model:    cfg.Model,
			APIKey:   redactKey(cfg.APIKey()),
			Endpoints: map[string]string{
				string(cfg.Provider): cfg.Endpoint(),
			},
		}); err != nil {
			slog.Warn("recording llm info", "error", err)
		}

		factory := registry.Factory{
			Store:     st,
			Hub:       hub,
			LLM:       llmClient,
			Syntax:    syntax.NewJSValidator(),
			Bridge:    bridge,
			Telemetry: telemetry.New(),
		}
		reg := registry.New(factory)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := reg.ResumeOnStart(ctx); err != nil {
			slog.Warn("resuming running projects", "error", err)
		}

		app := httpapi.NewApp(httpapi.Options{Addr: fmt.Sprintf(":%d", port)}, st, hub, reg, llmClient)

		go func() {
			if err := app.Server.ListenAndServe(); err != nil {
				slog.Error("server exited", "error", err)
			}
		}()

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s ralph serving on :%d (db: %s)\n", green("✓"), port, dbPath)
		fmt.Println("  Press Ctrl+C to stop")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error during shutdown: %v\n", err)
		}
		fmt.Printf("%s ralph stopped\n", green("✓"))
	},
}

func init() {
	serveCmd.Flags().Int("port", 3000, "port to listen on")
	serveCmd.Flags().String("db", "data/db.json", "path to the persisted JSON document")
	rootCmd.AddCommand(serveCmd)
}

// redactKey keeps only the last four characters of key so `settings show`
// can confirm which credential is active without ever displaying it.
func redactKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
