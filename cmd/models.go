package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Load the recognition models and report the chosen detector",
	Long: `Load the recognition models the same way the service does at startup
and print which backend and detector variant were selected. Useful to check
a deployment before routing traffic to it.`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.Flags().Bool("json", false, "Output as JSON")
}

// ModelsOutput is the result of the models command.
type ModelsOutput struct {
	Backend    string   `json:"backend"`
	Preference string   `json:"preference"`
	Installed  []string `json:"installed"`
	Detector   string   `json:"detector"`
	DurationMs int64    `json:"duration_ms"`
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	orchestrator, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	runtime := orchestrator.Runtime()
	defer runtime.Close()

	ctx := context.Background()
	start := time.Now()
	if err := orchestrator.Warmup(ctx); err != nil {
		return err
	}

	out := ModelsOutput{
		Backend:    runtime.Backend().Name(),
		Preference: cfg.Face.Detector,
		Detector:   string(runtime.Detector()),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if installed, err := runtime.Backend().Detectors(ctx); err == nil {
		for _, d := range installed {
			out.Installed = append(out.Installed, string(d))
		}
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(out)
	}
	fmt.Printf("Backend:    %s\n", out.Backend)
	fmt.Printf("Preference: %s\n", out.Preference)
	fmt.Printf("Installed:  %v\n", out.Installed)
	fmt.Printf("Detector:   %s\n", out.Detector)
	fmt.Printf("Loaded in:  %s\n", time.Duration(out.DurationMs)*time.Millisecond)
	return nil
}
