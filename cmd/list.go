package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alt-project/orchestrator/internal/config"
	"github.com/alt-project/orchestrator/internal/coordinator"
	"github.com/alt-project/orchestrator/internal/output"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List portfolio domains",
	Long: `List the domains declared in the portfolio configuration along with
their dependency relationships.

Examples:
  orchestrator list                  # List all domains
  orchestrator list --deps           # Show the dependency graph
  orchestrator list --json           # Output as JSON`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().Bool("deps", false, "show dependency graph")
	listCmd.Flags().Bool("json", false, "output as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	printer := newPrinter()

	jsonOutput, _ := cmd.Flags().GetBool("json")
	showDeps, _ := cmd.Flags().GetBool("deps")

	if jsonOutput {
		return outputListJSON(cfg.Portfolio)
	}
	if showDeps {
		return outputDependencyGraph(printer, cfg.Portfolio)
	}
	return outputDomainList(printer, cfg.Portfolio)
}

func outputListJSON(portfolio config.PortfolioConfig) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(portfolio)
}

func outputDomainList(printer *output.Printer, portfolio config.PortfolioConfig) error {
	printer.Header("Portfolio Domains")

	names := make([]string, 0, len(portfolio))
	for name := range portfolio {
		names = append(names, name)
	}
	sort.Strings(names)

	table := output.NewTable([]string{"DOMAIN", "WORKER NAME", "DATABASE", "DEPENDS ON"})
	for _, name := range names {
		o := portfolio[name]
		table.AddRow([]string{
			printer.Bold(name),
			orDash(o.WorkerName),
			orDash(o.DatabaseName),
			orDash(strings.Join(o.Dependencies, ", ")),
		})
	}
	table.Render()
	fmt.Println()

	printer.Info("%d domain(s) in portfolio", len(names))
	printer.PrintHints("list")
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func outputDependencyGraph(printer *output.Printer, portfolio config.PortfolioConfig) error {
	printer.Header("Dependency Graph")

	var names []string
	edges := make(map[string][]string)
	for name, o := range portfolio {
		names = append(names, name)
		edges[name] = o.Dependencies
	}
	sort.Strings(names)

	g := coordinator.NewGraph(names, edges)
	if cycleNode, err := g.DetectCycle(); err != nil {
		printer.Warning("dependency graph has a cycle at %q: %v", cycleNode, err)
	}

	order, err := g.TopoOrder()
	if err != nil {
		return err
	}

	children := make(map[string][]string)
	for dependent, prereqs := range edges {
		for _, p := range prereqs {
			children[p] = append(children[p], dependent)
		}
	}
	for k := range children {
		sort.Strings(children[k])
	}

	var roots []string
	for _, name := range order {
		if len(edges[name]) == 0 {
			roots = append(roots, name)
		}
	}

	fmt.Println()
	visited := make(map[string]bool)
	for i, root := range roots {
		printTree(printer, root, children, visited, "", i == len(roots)-1)
	}
	fmt.Println()

	printer.Header("Deployment Order")
	for i, name := range order {
		printer.Print("%d. %s", i+1, name)
	}

	return nil
}

// printTree recursively prints a tree representation of the dependency graph.
// Tracks visited nodes to avoid duplicating subtrees.
func printTree(printer *output.Printer, name string, children map[string][]string, visited map[string]bool, prefix string, isLast bool) {
	if prefix == "" {
		printer.Print("%s", printer.Bold(name))
	} else {
		connector := "├── "
		if isLast {
			connector = "└── "
		}
		printer.Print("%s%s%s", prefix, connector, printer.Bold(name))
	}

	if visited[name] {
		return
	}
	visited[name] = true

	childPrefix := "  "
	if prefix != "" {
		if isLast {
			childPrefix = prefix + "    "
		} else {
			childPrefix = prefix + "│   "
		}
	}

	kids := children[name]
	for i, child := range kids {
		printTree(printer, child, children, visited, childPrefix, i == len(kids)-1)
	}
}
