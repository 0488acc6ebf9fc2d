package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceverify/internal/verify"
)

var referencesCmd = &cobra.Command{
	Use:   "references",
	Short: "Reference photo management commands",
	Long:  `Commands for managing the stored employee reference photos.`,
}

var referencesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that every reference photo contains a usable face",
	Long: `Recompute the descriptor of every active reference photo and report the
employees whose photo cannot be used for verification (no face, missing
blob, undecodable image).

Examples:
  faceverify references check
  faceverify references check --json`,
	RunE: runReferencesCheck,
}

var referencesSetCmd = &cobra.Command{
	Use:   "set <employee-id> <photo>",
	Short: "Store a reference photo for an employee",
	Args:  cobra.ExactArgs(2),
	RunE:  runReferencesSet,
}

var referencesDeleteCmd = &cobra.Command{
	Use:   "delete <employee-id>",
	Short: "Delete the reference photo of an employee",
	Args:  cobra.ExactArgs(1),
	RunE:  runReferencesDelete,
}

func init() {
	rootCmd.AddCommand(referencesCmd)
	referencesCmd.AddCommand(referencesCheckCmd, referencesSetCmd, referencesDeleteCmd)

	referencesCheckCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// CheckReferencesResult is the result of the references check command.
type CheckReferencesResult struct {
	Success    bool                  `json:"success"`
	Failures   []verify.CheckFailure `json:"failures"`
	DurationMs int64                 `json:"duration_ms"`
}

func runReferencesCheck(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	startTime := time.Now()
	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if jsonOutput {
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Checking references"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("photos"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
	}

	failures, err := a.references.Check(ctx, progress)
	if err != nil {
		return fmt.Errorf("checking references: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	result := CheckReferencesResult{
		Success:    len(failures) == 0,
		Failures:   failures,
		DurationMs: time.Since(startTime).Milliseconds(),
	}
	if result.Failures == nil {
		result.Failures = []verify.CheckFailure{}
	}
	if jsonOutput {
		return outputJSON(result)
	}

	if len(failures) == 0 {
		fmt.Println("All reference photos are usable.")
		return nil
	}
	fmt.Printf("%d reference photos cannot be used:\n", len(failures))
	for _, f := range failures {
		fmt.Printf("  employee %-8d %-20s %s\n", f.EmployeeID, f.Kind, f.Message)
	}
	return nil
}

func parseEmployeeID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid employee ID %q", s)
	}
	return id, nil
}

func runReferencesSet(cmd *cobra.Command, args []string) error {
	employeeID, err := parseEmployeeID(args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading photo: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ref, err := a.references.Replace(ctx, employeeID, data)
	if err != nil {
		return fmt.Errorf("%s: %w", verify.AsError(err).Message(), err)
	}
	fmt.Printf("Stored reference photo for employee %d (%s)\n", ref.EmployeeID, ref.PhotoKey)
	return nil
}

func runReferencesDelete(cmd *cobra.Command, args []string) error {
	employeeID, err := parseEmployeeID(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.references.Delete(ctx, employeeID); err != nil {
		return fmt.Errorf("%s: %w", verify.AsError(err).Message(), err)
	}
	fmt.Printf("Deleted reference photo for employee %d\n", employeeID)
	return nil
}
