package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTargetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List compilation targets",
		Long: `List the registered compilation targets.

Targets turn a validated plan into an executable workflow document.
Built-in targets ship with the engine; WASM adapters from the
configured plugins directory are registered alongside them.`,
		Example: `  # List targets
  maicrosoft targets

  # Include the default marker as JSON
  maicrosoft targets --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close(cmd.Context())

			status := eng.Status()

			if jsonOutput {
				return printJSON(struct {
					Targets []string `json:"targets"`
					Default string   `json:"default"`
				}{status.Targets, status.DefaultTarget})
			}

			for _, name := range status.Targets {
				marker := ""
				if name == status.DefaultTarget {
					marker = " (default)"
				}
				fmt.Printf("%s%s\n", name, marker)
			}
			return nil
		},
	}

	return cmd
}
