package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/craftflow-backend/internal/app"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run one workflow in-process and print its events as JSON lines",
	Long: `Runs the workflow for a single prompt without the HTTP server. Progress
events are written to stdout, one JSON object per line, followed by the final
job record.`,
	RunE: runWorkflowCmd,
}

var (
	runUserID       int64
	runProjectID    int64
	runPrompt       string
	runTurns        []string
	runWaitDeferred bool
	runTimeout      time.Duration
)

func init() {
	runCommand.Flags().Int64Var(&runUserID, "user-id", 1, "Owner of the project")
	runCommand.Flags().Int64Var(&runProjectID, "project-id", 0, "Existing image project (0 creates one)")
	runCommand.Flags().StringVarP(&runPrompt, "prompt", "p", "", "Design prompt")
	runCommand.Flags().StringArrayVar(&runTurns, "turn", nil, `Seed a conversation turn as "role: content" (repeatable)`)
	runCommand.Flags().BoolVar(&runWaitDeferred, "wait-deferred", false, "Wait for the deferred 3D model result")
	runCommand.Flags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "Give up after this long")
	_ = runCommand.MarkFlagRequired("prompt")

	rootCmd.AddCommand(runCommand)
}

func runWorkflowCmd(cmd *cobra.Command, _ []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	events := app.NewEventWriter(os.Stdout)
	a, err := app.New(ctx, log, cfg, app.WithEventObserver(events))
	if err != nil {
		log.Sync()
		return err
	}
	defer a.Close()

	job, err := a.RunOnce(ctx, app.RunRequest{
		UserID:       runUserID,
		ProjectID:    runProjectID,
		Prompt:       runPrompt,
		Turns:        runTurns,
		WaitDeferred: runWaitDeferred,
	}, events)
	if err != nil {
		return err
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stop()
	if err := a.Supervisor.Shutdown(shutdownCtx); err != nil {
		log.Warn("Supervisor shutdown incomplete", "error", err)
	}
	return json.NewEncoder(os.Stdout).Encode(map[string]any{"job": job})
}
