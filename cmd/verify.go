package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceverify/internal/imaging"
	"github.com/kozaktomas/faceverify/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare two face photos",
	Long: `Compare a reference photo with an input photo using the configured
recognition backend, without touching the database or the descriptor cache
of a running service.

The reference may be a local path or an http(s) URL. The input must be a
local file, the same way a check-in photo arrives as raw bytes.

Examples:
  faceverify verify --reference ./alice.jpg --input ./checkin.jpg
  faceverify verify --reference https://example.com/alice.jpg --input ./checkin.jpg --json`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().String("reference", "", "Reference photo (path or URL)")
	verifyCmd.Flags().String("input", "", "Input photo path")
	verifyCmd.Flags().Float64("threshold", 0, "Match threshold override (default FACE_MATCH_THRESHOLD)")
	verifyCmd.Flags().Bool("json", false, "Output as JSON")
	_ = verifyCmd.MarkFlagRequired("reference")
	_ = verifyCmd.MarkFlagRequired("input")
}

// VerifyOutput is the result of the verify command.
type VerifyOutput struct {
	Match      bool    `json:"match"`
	Distance   float64 `json:"distance"`
	Threshold  float64 `json:"threshold"`
	Detector   string  `json:"detector"`
	DurationMs int64   `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
	Kind       string  `json:"kind,omitempty"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if threshold := mustGetFloat64(cmd, "threshold"); threshold > 0 {
		cfg.Face.Threshold = threshold
	}
	jsonOutput := mustGetBool(cmd, "json")

	input, err := os.ReadFile(mustGetString(cmd, "input"))
	if err != nil {
		return fmt.Errorf("reading input photo: %w", err)
	}
	referencePath := mustGetString(cmd, "reference")
	reference := sourceFor(referencePath)

	orchestrator, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer orchestrator.Runtime().Close()

	ctx := context.Background()
	start := time.Now()
	resolve := func(context.Context) (imaging.Source, error) { return reference, nil }
	result, err := orchestrator.Verify(ctx, "cli", referencePath, resolve, input)

	out := VerifyOutput{
		Match:      result.Match,
		Distance:   result.Distance,
		Threshold:  cfg.Face.Threshold,
		Detector:   string(orchestrator.Runtime().Detector()),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		verr := verify.AsError(err)
		out.Error = verr.Message()
		out.Kind = string(verr.Kind)
	}

	if jsonOutput {
		if encErr := outputJSON(out); encErr != nil {
			return encErr
		}
		return err
	}
	if err != nil {
		return fmt.Errorf("%s: %w", out.Error, err)
	}

	verdict := "NO MATCH"
	if out.Match {
		verdict = "MATCH"
	}
	fmt.Printf("%s\n", verdict)
	fmt.Printf("  Distance:  %.4f\n", out.Distance)
	fmt.Printf("  Threshold: %.4f\n", out.Threshold)
	fmt.Printf("  Detector:  %s\n", out.Detector)
	fmt.Printf("  Took:      %s\n", time.Duration(out.DurationMs)*time.Millisecond)
	return nil
}
