package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vizi2000/maicrosoft/pkg/registry"
)

func newPrimitivesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "primitives",
		Short: "Primitive catalog inspection",
		Long: `Inspect the primitive catalog plans are validated against.

Primitives are the pre-vetted building blocks a plan may invoke:
  - http_call, db_query, file_op: side-effecting operations
  - transform, branch, loop:      data and control flow
  - llm_call, cache, queue, log:  services and observability

The catalog comes from the embedded built-in set or from the
primitives directory named in the config file.`,
	}

	cmd.AddCommand(newPrimitivesListCommand())
	cmd.AddCommand(newPrimitivesShowCommand())
	cmd.AddCommand(newPrimitivesSearchCommand())

	return cmd
}

func newPrimitivesListCommand() *cobra.Command {
	var (
		primitiveType string
		category      string
		status        string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog primitives",
		Long: `List the primitives in the catalog.

Filters narrow the listing by type, category, or stability status.`,
		Example: `  # List the whole catalog
  maicrosoft primitives list

  # List control-flow primitives
  maicrosoft primitives list --category control

  # List only stable primitives as JSON
  maicrosoft primitives list --status stable --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close(cmd.Context())

			summaries := eng.ListPrimitives(registry.ListFilter{
				Type:     registry.PrimitiveType(primitiveType),
				Category: registry.Category(category),
				Status:   registry.Status(status),
			})

			if jsonOutput {
				return printJSON(summaries)
			}

			if len(summaries) == 0 {
				fmt.Println("No primitives match the filter.")
				return nil
			}

			fmt.Printf("%-6s %-12s %-14s %-9s %s\n", "ID", "NAME", "CATEGORY", "STATUS", "DESCRIPTION")
			for _, s := range summaries {
				fmt.Printf("%-6s %-12s %-14s %-9s %s\n",
					s.ID, s.Name, s.Category, s.Status, s.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&primitiveType, "type", "", "filter by primitive type")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (draft, stable, deprecated)")

	return cmd
}

func newPrimitivesShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a primitive's full definition",
		Long: `Display one primitive's complete definition: its interface contract,
compilation targets, and constraints.`,
		Example: `  # Show the http_call primitive
  maicrosoft primitives show P001

  # Full definition as JSON
  maicrosoft primitives show P001 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close(cmd.Context())

			prim, err := eng.GetPrimitive(args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(prim)
			}

			printPrimitive(prim)
			return nil
		},
	}

	return cmd
}

func printPrimitive(prim *registry.Primitive) {
	meta := prim.Metadata
	fmt.Printf("%s  %s (v%s, %s)\n", meta.ID, meta.Name, meta.Version, meta.Status)
	fmt.Printf("  %s\n", meta.Description)
	if meta.Category != "" {
		fmt.Printf("  category: %s\n", meta.Category)
	}
	if len(meta.Tags) > 0 {
		fmt.Printf("  tags:     %s\n", strings.Join(meta.Tags, ", "))
	}

	if len(prim.Interface.Inputs) > 0 {
		fmt.Println("\nInputs:")
		for _, in := range prim.Interface.Inputs {
			req := ""
			if in.Required {
				req = " (required)"
			}
			fmt.Printf("  %-14s %-8s%s  %s\n", in.Name, in.Type, req, in.Description)
		}
	}

	if len(prim.Interface.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for _, out := range prim.Interface.Outputs {
			fmt.Printf("  %-14s %-8s  %s\n", out.Name, out.Type, out.Description)
		}
	}

	if len(prim.Interface.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range prim.Interface.Errors {
			retry := ""
			if e.Retryable {
				retry = " (retryable)"
			}
			fmt.Printf("  %-20s%s  %s\n", e.Code, retry, e.Description)
		}
	}

	if len(prim.CompilationTargets) > 0 {
		names := make([]string, 0, len(prim.CompilationTargets))
		for name := range prim.CompilationTargets {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Printf("\nTargets: %s\n", strings.Join(names, ", "))
	}
}

func newPrimitivesSearchCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog",
		Long: `Search primitives by name, description, and tags.

Results are scored and ordered best match first.`,
		Example: `  # Find primitives related to HTTP
  maicrosoft primitives search http

  # Top three matches as JSON
  maicrosoft primitives search queue --limit 3 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close(cmd.Context())

			results := eng.SearchPrimitives(args[0], limit)

			if jsonOutput {
				return printJSON(results)
			}

			if len(results) == 0 {
				fmt.Printf("No primitives match %q.\n", args[0])
				return nil
			}

			for _, r := range results {
				fmt.Printf("%-6s %-12s %s\n", r.ID, r.Name, r.Description)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of results")

	return cmd
}
