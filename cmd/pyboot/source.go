package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/pyboot/internal/mirror"
)

func newSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Select download mirrors by latency",
		Long: `Measure the latency to each known mirror and save the fastest one.
Unreachable mirrors are reported as 9999ms; if every mirror is unreachable the
first one is kept.`,
		Example: `  pyboot source pip
  pyboot source python
  pyboot source list`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "pip",
			Short: "Select the fastest package index",
			Args:  cobra.NoArgs,
			RunE:  sourcePipRun,
		},
		&cobra.Command{
			Use:   "python",
			Short: "Select the fastest Python download source",
			Args:  cobra.NoArgs,
			RunE:  sourcePythonRun,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List known mirrors and the configured ones",
			Args:  cobra.NoArgs,
			RunE:  sourceListRun,
		},
	)

	return cmd
}

func sourcePipRun(cmd *cobra.Command, args []string) error {
	if globalService == nil {
		return fmt.Errorf("service not initialized")
	}
	p := newProgressPrinter(os.Stdout, quiet)

	choice, ok := globalService.ChooseBestPipSource(cmd.Context(), p.Func())
	if !ok {
		return fmt.Errorf("pip source selection failed")
	}
	printChoice("pip source", choice)
	return nil
}

func sourcePythonRun(cmd *cobra.Command, args []string) error {
	if globalService == nil {
		return fmt.Errorf("service not initialized")
	}
	p := newProgressPrinter(os.Stdout, quiet)

	choice, ok := globalService.ChooseBestPythonSource(cmd.Context(), p.Func())
	if !ok {
		return fmt.Errorf("python source selection failed")
	}
	printChoice("Python source", choice)
	return nil
}

func printChoice(name string, c mirror.Choice) {
	fmt.Printf("Selected %s: %s (%s, %dms)\n", name, c.Label, c.URL, c.LatencyMs)
}

func sourceListRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	cfg := globalCfg.Get()

	groups := []struct {
		title    string
		category mirror.Category
		current  string
	}{
		{"Package index", mirror.CategoryPackageIndex, cfg.Env.PipSource},
		{"Python download", mirror.CategoryInterpreter, cfg.Env.PythonSource},
	}

	for i, g := range groups {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("%s sources:\n", g.title)
		fmt.Printf("  %-1s %-14s %s\n", "", "Label", "URL")
		for _, src := range mirror.Sources(g.category) {
			marker := ""
			if src.URL == g.current {
				marker = "*"
			}
			fmt.Printf("  %-1s %-14s %s\n", marker, src.Label, src.URL)
		}
		if _, known := mirror.LabelFor(g.current); !known && g.current != "" {
			fmt.Printf("  %-1s %-14s %s\n", "*", "(custom)", g.current)
		}
	}
	return nil
}
