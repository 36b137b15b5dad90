package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vizi2000/maicrosoft/pkg/config"
)

const starterPlan = `metadata:
  id: wf-hello
  name: Hello Workflow
  version: 1.0.0
  description: Fetches a URL and logs the response status.

settings:
  allow_fallback: false
  risk_level: low

trigger:
  type: manual
  config: {}

nodes:
  - id: fetch
    primitive_id: P001
    inputs:
      url: "https://example.com/api/status"
      method: "GET"

  - id: announce
    primitive_id: P010
    inputs:
      message: "fetched {{ ref: fetch.status }}"
      level: "info"

edges:
  - from_node: fetch
    to_node: announce
`

func newInitCommand() *cobra.Command {
	var (
		withStore bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize a maicrosoft workspace",
		Long: `Initialize a workspace with a config file, a starter plan, and the
directory layout the other commands expect.

The workspace holds:
  - maicrosoft.yaml: tool configuration
  - plans/:          plan documents
  - policies/:       additional rego policy rules
  - artifacts/:      compiled workflow output

With --store the submission history database is created and migrated
so the serve command can record submissions immediately.`,
		Example: `  # Initialize the current directory
  maicrosoft init

  # Initialize a named directory with a history store
  maicrosoft init ./workflows --store`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}

			log.Info().
				Str("dir", root).
				Bool("store", withStore).
				Msg("Initializing workspace")

			fmt.Printf("Initializing maicrosoft workspace in %s\n\n", root)

			dirs := []string{
				root,
				filepath.Join(root, "plans"),
				filepath.Join(root, "policies"),
				filepath.Join(root, "artifacts"),
			}
			for _, dir := range dirs {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", dir, err)
				}
				fmt.Printf("✓ Created directory: %s\n", dir)
			}

			cfg := config.DefaultConfig()
			cfg.Policies.Paths = []string{filepath.Join(root, "policies")}
			cfg.Publish.Directory = filepath.Join(root, "artifacts")
			if withStore {
				cfg.Store.Enabled = true
				cfg.Store.Path = filepath.Join(root, "maicrosoft.db")
			}

			cfgPath := filepath.Join(root, "maicrosoft.yaml")
			if _, err := os.Stat(cfgPath); err == nil {
				fmt.Printf("✓ Config file already exists: %s\n", cfgPath)
			} else {
				if err := cfg.Save(cfgPath); err != nil {
					return err
				}
				fmt.Printf("✓ Created config file: %s\n", cfgPath)
			}

			planPath := filepath.Join(root, "plans", "hello.yaml")
			if _, err := os.Stat(planPath); err == nil {
				fmt.Printf("✓ Starter plan already exists: %s\n", planPath)
			} else {
				if err := os.WriteFile(planPath, []byte(starterPlan), 0o644); err != nil {
					return fmt.Errorf("failed to write starter plan: %w", err)
				}
				fmt.Printf("✓ Created starter plan: %s\n", planPath)
			}

			if withStore {
				store, err := openStore(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				store.Close()
				fmt.Printf("✓ Initialized history database: %s\n", cfg.Store.Path)
			}

			fmt.Printf("\n✅ Workspace initialized successfully!\n\n")
			fmt.Printf("Next steps:\n")
			fmt.Printf("  1. Validate the starter plan:\n")
			fmt.Printf("     maicrosoft -c %s validate %s\n\n", cfgPath, planPath)
			fmt.Printf("  2. Compile it for n8n:\n")
			fmt.Printf("     maicrosoft -c %s compile %s\n\n", cfgPath, planPath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&withStore, "store", false, "create and migrate the submission history database")

	return cmd
}
