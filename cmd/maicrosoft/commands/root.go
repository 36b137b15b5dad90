package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vizi2000/maicrosoft/pkg/config"
	"github.com/vizi2000/maicrosoft/pkg/engine"
	"github.com/vizi2000/maicrosoft/pkg/stores"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "maicrosoft",
		Short: "Maicrosoft - Plan Validation & Compilation Engine",
		Long: `Maicrosoft validates declarative workflow plans built from a catalog of
pre-vetted primitives and compiles them into executable workflow formats.

A plan is a graph of primitive invocations. Validation walks six stages:
  - Syntax and required fields
  - Primitive existence and stability
  - Input contracts (required inputs, types, unknown keys)
  - Graph shape (cycles, dangling references)
  - Policy rules (OPA/rego)
  - Target compatibility and limits

Valid plans compile deterministically: the same plan and target always
produce byte-identical artifacts.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newCompileCommand())
	rootCmd.AddCommand(newPrimitivesCommand())
	rootCmd.AddCommand(newTargetsCommand())
	rootCmd.AddCommand(newPoliciesCommand())
	rootCmd.AddCommand(newComposeCommand())
	rootCmd.AddCommand(newPublishCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}

// loadConfig loads the config file named by --config, or defaults when
// the flag is unset.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return cfg, nil
}

// buildEngine loads the config and constructs an engine from it,
// applying any configured policy disables.
func buildEngine(ctx context.Context) (*engine.Engine, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(ctx, cfg.EngineOptions(), log.Logger)
	if err != nil {
		return nil, nil, err
	}

	for _, name := range cfg.Policies.Disabled {
		if err := eng.Policies().DisablePolicy(name); err != nil {
			return nil, nil, fmt.Errorf("failed to disable policy %s: %w", name, err)
		}
	}

	return eng, cfg, nil
}

// openStore opens the history store configured in cfg, running
// migrations so a fresh database is immediately usable.
func openStore(ctx context.Context, cfg *config.Config) (stores.Store, error) {
	store, err := stores.NewSQLiteStore(cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
