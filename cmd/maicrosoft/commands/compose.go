package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vizi2000/maicrosoft/pkg/compose"
)

func newComposeCommand() *cobra.Command {
	var (
		params []string
		output string
		check  bool
		target string
	)

	cmd := &cobra.Command{
		Use:   "compose <script.star>",
		Short: "Compose a plan from a Starlark script",
		Long: `Execute a Starlark composition script and emit the plan it builds.

Scripts assemble plans programmatically with the node(), edge(),
trigger() and fallback() builtins, then return the document. Execution
is sandboxed and bounded by the compose timeout in the config file.

Parameters passed with --param are exposed to the script as
predeclared string variables.`,
		Example: `  # Compose a plan and print it
  maicrosoft compose pipelines/orders.star

  # Compose with parameters into a file, then validate it
  maicrosoft compose --param env=staging --output plans/orders.yaml --check pipelines/orders.star`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cfg, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close(cmd.Context())

			input := make(map[string]interface{}, len(params))
			for _, p := range params {
				key, value, found := strings.Cut(p, "=")
				if !found || key == "" {
					return fmt.Errorf("invalid --param %q, expected key=value", p)
				}
				input[key] = value
			}

			log.Info().
				Str("script", args[0]).
				Int("params", len(input)).
				Msg("Composing plan")

			ev := compose.NewEvaluator(cfg.Compose.Timeout.Std())
			result, err := ev.ComposeFile(cmd.Context(), args[0], input)
			if err != nil {
				return fmt.Errorf("composition failed: %w", err)
			}

			doc, err := yaml.Marshal(result.Plan)
			if err != nil {
				return fmt.Errorf("failed to encode composed plan: %w", err)
			}

			if output == "" || output == "-" {
				os.Stdout.Write(doc)
			} else {
				if err := os.WriteFile(output, doc, 0o644); err != nil {
					return fmt.Errorf("failed to write composed plan: %w", err)
				}
				fmt.Printf("✓ Composed %s -> %s (%v)\n",
					result.Plan.Metadata.ID, output, result.ExecutionTime.Round(summaryRounding))
			}

			if check {
				report, err := eng.ValidatePlan(cmd.Context(), result.Plan, target)
				if err != nil {
					return err
				}
				printReport(args[0], report)
				if !report.Valid() {
					return fmt.Errorf("composed plan is invalid")
				}
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&params, "param", nil, "script parameter as key=value (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "plan file path, or - for stdout")
	cmd.Flags().BoolVar(&check, "check", false, "validate the composed plan")
	cmd.Flags().StringVarP(&target, "target", "t", "", "target for --check (defaults to the configured target)")

	return cmd
}
