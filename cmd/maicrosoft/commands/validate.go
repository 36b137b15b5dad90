package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vizi2000/maicrosoft/pkg/engine"
)

func newValidateCommand() *cobra.Command {
	var (
		target  string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate plan documents",
		Long: `Validate plan documents against the primitive catalog, policy rules,
and the target platform.

Each plan passes through six stages:
  - Syntax and required fields
  - Primitive existence and stability
  - Input contracts
  - Graph shape (cycles, dangling references)
  - Policy rules
  - Target compatibility and limits

All stages run even when an early one fails, so one pass reports
every problem. Directories are validated recursively and
concurrently. The command exits non-zero when any plan is invalid.`,
		Example: `  # Validate one plan
  maicrosoft validate plans/hello.yaml

  # Validate every plan in a directory against a target
  maicrosoft validate --target n8n ./plans

  # Machine-readable report
  maicrosoft validate --json plans/hello.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close(cmd.Context())

			paths, err := collectPlanFiles(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no plan files found under %v", args)
			}

			log.Info().
				Int("files", len(paths)).
				Str("target", target).
				Msg("Validating plans")

			if len(paths) == 1 {
				report, err := eng.ValidateFile(cmd.Context(), paths[0], target)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(report)
				}
				printReport(paths[0], report)
				if !report.Valid() {
					return fmt.Errorf("plan is invalid")
				}
				return nil
			}

			items, summary := eng.ValidateBatch(cmd.Context(), paths, engine.BatchOptions{
				Workers: workers,
				Target:  target,
			})

			if jsonOutput {
				return printJSON(batchOutput(items, summary))
			}

			for _, item := range items {
				if item.Err != nil {
					fmt.Printf("✗ %s: %v\n", item.Path, item.Err)
					continue
				}
				printReport(item.Path, item.Report)
			}
			fmt.Printf("\n%d plans: %d valid, %d invalid, %d failed (%s)\n",
				summary.Total, summary.Valid, summary.Invalid, summary.Failed,
				summary.Duration.Round(summaryRounding))

			if summary.Invalid > 0 || summary.Failed > 0 {
				return fmt.Errorf("%d of %d plans did not validate",
					summary.Invalid+summary.Failed, summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "compilation target (defaults to the configured target)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent validations for directories")

	return cmd
}
