package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newPoliciesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Inspect and toggle policy rules",
		Long: `Manage the policy rules applied during validation.

Built-in rules cover plan size, fallback counts, and risky fallback
code. Additional rego rules are loaded from the policy paths in the
config file; rules named under policies.disabled are skipped.`,
	}

	cmd.AddCommand(newPoliciesListCommand())
	cmd.AddCommand(newPoliciesEnableCommand())
	cmd.AddCommand(newPoliciesDisableCommand())

	return cmd
}

func newPoliciesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List policy rules",
		Example: `  # List policies
  maicrosoft policies list

  # Full rule detail as JSON
  maicrosoft policies list --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close(cmd.Context())

			policies := eng.Policies().ListPolicies()

			if jsonOutput {
				return printJSON(policies)
			}

			fmt.Printf("%-24s %-9s %-9s %s\n", "NAME", "SEVERITY", "ENABLED", "DESCRIPTION")
			for _, p := range policies {
				fmt.Printf("%-24s %-9s %-9t %s\n", p.Name, p.Severity, p.Enabled, p.Description)
			}
			return nil
		},
	}
}

func newPoliciesEnableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <name>",
		Short: "Enable a policy rule",
		Long: `Remove a rule from the disabled list in the config file.

The change applies to every later run that loads the same config.`,
		Example: `  maicrosoft policies enable node-budget -c maicrosoft.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return togglePolicy(cmd, args[0], true)
		},
	}
}

func newPoliciesDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <name>",
		Short: "Disable a policy rule",
		Long: `Add a rule to the disabled list in the config file.

Disabled rules stay loaded and listed, but no longer run during
validation.`,
		Example: `  maicrosoft policies disable manual-trigger-review -c maicrosoft.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return togglePolicy(cmd, args[0], false)
		},
	}
}

// togglePolicy rewrites the config file's disabled list. The engine is
// built first so an unknown rule name fails before the file changes.
func togglePolicy(cmd *cobra.Command, name string, enable bool) error {
	if configPath == "" {
		return fmt.Errorf("toggling a policy needs a config file, pass --config")
	}

	eng, cfg, err := buildEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close(cmd.Context())

	if _, err := eng.Policies().GetPolicy(name); err != nil {
		return err
	}

	disabled := make([]string, 0, len(cfg.Policies.Disabled))
	for _, n := range cfg.Policies.Disabled {
		if n != name {
			disabled = append(disabled, n)
		}
	}
	if !enable {
		disabled = append(disabled, name)
	}
	cfg.Policies.Disabled = disabled

	if err := cfg.Save(configPath); err != nil {
		return err
	}

	log.Info().Str("policy", name).Bool("enabled", enable).Msg("Updated policy standing")

	if enable {
		fmt.Printf("✓ Enabled policy %s\n", name)
	} else {
		fmt.Printf("✓ Disabled policy %s\n", name)
	}
	fmt.Printf("  config: %s\n", configPath)
	return nil
}
