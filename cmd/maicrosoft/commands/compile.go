package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vizi2000/maicrosoft/pkg/config"
	"github.com/vizi2000/maicrosoft/pkg/stores"
	"github.com/vizi2000/maicrosoft/pkg/targets"
)

func newCompileCommand() *cobra.Command {
	var (
		target string
		output string
		store  bool
	)

	cmd := &cobra.Command{
		Use:   "compile <plan-file>",
		Short: "Compile a plan into a workflow artifact",
		Long: `Validate a plan and compile it for a target platform.

Compilation is deterministic: the same plan and target always produce
byte-identical output, and the artifact carries a SHA-256 checksum of
its content. An invalid plan produces no artifact; the validation
report says why.

With --store the artifact is also written to the history database,
keyed by plan id, version and target, so later compiles of the same
plan version can be compared against it.`,
		Example: `  # Compile for the configured default target
  maicrosoft compile plans/hello.yaml

  # Compile for a specific target into a named file
  maicrosoft compile --target n8n --output hello.json plans/hello.yaml

  # Write the artifact content to stdout
  maicrosoft compile --output - plans/hello.yaml

  # Compile and keep the artifact in the history database
  maicrosoft compile --store plans/hello.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cfg, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close(cmd.Context())

			log.Info().
				Str("plan", args[0]).
				Str("target", target).
				Msg("Compiling plan")

			result, err := eng.CompileFile(cmd.Context(), args[0], target)
			if err != nil {
				return err
			}

			if !result.Report.Valid() {
				if jsonOutput {
					if err := printJSON(result.Report); err != nil {
						return err
					}
				} else {
					printReport(args[0], result.Report)
				}
				return fmt.Errorf("plan is invalid")
			}

			artifact := result.Artifact

			if output == "-" {
				os.Stdout.Write(artifact.Content)
				return nil
			}

			out := output
			if out == "" {
				out = fmt.Sprintf("%s.%s.%s", artifact.PlanID, artifact.Target, artifact.Format)
			}
			if err := os.WriteFile(out, artifact.Content, 0o644); err != nil {
				return fmt.Errorf("failed to write artifact: %w", err)
			}

			if store {
				if err := recordArtifact(cmd, cfg, artifact); err != nil {
					return err
				}
			}

			if jsonOutput {
				return printJSON(result)
			}

			fmt.Printf("✓ Compiled %s for %s\n", artifact.PlanID, artifact.Target)
			fmt.Printf("  artifact: %s (%d bytes)\n", out, len(artifact.Content))
			fmt.Printf("  checksum: %s\n", artifact.Checksum)
			for _, w := range result.Report.Result.Warnings {
				fmt.Printf("  warning [%s] %s\n", w.Code, w.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "compilation target (defaults to the configured target)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "artifact file path, or - for stdout")
	cmd.Flags().BoolVar(&store, "store", false, "write the artifact to the history database")

	return cmd
}

// recordArtifact upserts the compiled artifact into the history store
// and leaves an audit entry. The store must be enabled in config.
func recordArtifact(cmd *cobra.Command, cfg *config.Config, artifact *targets.Artifact) error {
	if !cfg.Store.Enabled {
		return fmt.Errorf("--store needs store.enabled in the config file")
	}

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	now := time.Now().UTC()
	row := &stores.Artifact{
		ID:          uuid.NewString(),
		PlanID:      artifact.PlanID,
		PlanVersion: artifact.PlanVersion,
		Target:      artifact.Target,
		Format:      artifact.Format,
		Checksum:    artifact.Checksum,
		Content:     artifact.Content,
		CompiledAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.UpsertArtifact(cmd.Context(), row); err != nil {
		return fmt.Errorf("failed to record artifact: %w", err)
	}

	planID := artifact.PlanID
	entry := &stores.AuditEntry{
		Action:    "artifact.compiled",
		Actor:     "cli",
		PlanID:    &planID,
		Timestamp: now,
	}
	if err := store.CreateAuditEntry(cmd.Context(), entry); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	fmt.Printf("  recorded: %s\n", cfg.Store.Path)
	return nil
}
