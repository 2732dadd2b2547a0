package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scttfrdmn/collective-traffic-gen/internal/catalog"
)

var (
	catalogPath  string
	catalogLimit int
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the catalog of generation runs",
	Long: `List recorded generation runs and the trace files they wrote. Runs are
recorded when a catalog path is configured (--catalog or catalog.path).

Examples:
  # Show the ten most recent runs
  collective-traffic-gen catalog runs --catalog catalog.db

  # Show the traces of one run
  collective-traffic-gen catalog traces 5d1c6a2e-... --catalog catalog.db`,
}

var catalogRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs, most recent first",
	Args:  cobra.NoArgs,
	Run:   runCatalogRunsCommand,
}

var catalogTracesCmd = &cobra.Command{
	Use:   "traces <run-id>",
	Short: "List the traces written by a run",
	Args:  cobra.ExactArgs(1),
	Run:   runCatalogTracesCommand,
}

func init() {
	catalogCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "catalog database (default: catalog.path from config)")
	catalogRunsCmd.Flags().IntVar(&catalogLimit, "limit", 10, "runs to show (0 for all)")

	catalogCmd.AddCommand(catalogRunsCmd)
	catalogCmd.AddCommand(catalogTracesCmd)
	rootCmd.AddCommand(catalogCmd)
}

func openCatalog() *catalog.Catalog {
	path := catalogPath
	if path == "" {
		path = viper.GetString("catalog.path")
	}
	if path == "" {
		fmt.Println("Error: no catalog configured, use --catalog or set catalog.path")
		os.Exit(1)
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Printf("Error: catalog %s not found: %v\n", path, err)
		os.Exit(1)
	}

	cat, err := catalog.Open(path)
	if err != nil {
		fmt.Printf("Error: failed to open catalog: %v\n", err)
		os.Exit(1)
	}
	return cat
}

func runCatalogRunsCommand(cmd *cobra.Command, args []string) {
	cat := openCatalog()
	defer cat.Close()

	runs, err := cat.ListRuns(catalogLimit)
	if err != nil {
		fmt.Printf("Error: failed to list runs: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("GENERATION RUNS")
	fmt.Println("===============")

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return
	}

	for _, run := range runs {
		fmt.Printf("\nRun: %s\n", run.ID)
		fmt.Printf("  Grammar: %s\n", run.GrammarPath)
		fmt.Printf("  Model: %s (%d devices, %d iterations)\n", run.Model, run.Devices, run.Iterations)
		fmt.Printf("  Seed: %d\n", run.Seed)
		fmt.Printf("  Status: %s\n", run.Status)
		if run.Error != "" {
			fmt.Printf("  Error: %s\n", run.Error)
		}
		fmt.Printf("  Traces: %d (%d descriptors)\n", run.Traces, run.Descriptors)
		fmt.Printf("  Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
		if !run.FinishedAt.IsZero() {
			fmt.Printf("  Duration: %v\n", run.FinishedAt.Sub(run.StartedAt))
		}
	}

	if size, err := cat.Size(); err == nil {
		fmt.Printf("\nCatalog size: %.2f MB (%s)\n", float64(size)/1024/1024, cat.Path())
	}
}

func runCatalogTracesCommand(cmd *cobra.Command, args []string) {
	cat := openCatalog()
	defer cat.Close()

	traces, err := cat.ListTraces(args[0])
	if err != nil {
		fmt.Printf("Error: failed to list traces: %v\n", err)
		os.Exit(1)
	}

	if len(traces) == 0 {
		fmt.Printf("No traces recorded for run %s.\n", args[0])
		return
	}

	fmt.Printf("%-9s %-12s %-4s %-6s %-6s %-7s %-11s %s\n",
		"ITERATION", "NODE", "MODE", "GROUP", "PORT", "PHASES", "DESCRIPTORS", "LOCATION")
	for _, t := range traces {
		fmt.Printf("%-9d %-12s %-4s %-6d %-6d %-7d %-11d %s\n",
			t.Iteration, t.NodeID, t.Mode, t.Group, t.Port, t.Phases, t.Descriptors, t.Location)
	}
}
