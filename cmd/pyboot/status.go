package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/pyboot/internal/mirror"
	"github.com/BadgerOps/pyboot/internal/project"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Display the state of the Python environment",
		Long: `Display the project, the installed tool versions, the selected mirrors
and whether the project manifest changed since the last dependency install.`,
		Args: cobra.NoArgs,
		RunE: statusRun,
	}
}

func statusRun(cmd *cobra.Command, args []string) error {
	if globalService == nil || globalCfg == nil {
		return fmt.Errorf("service not initialized")
	}
	ctx := cmd.Context()
	cfg := globalCfg.Get()
	layout := globalService.Layout()

	fmt.Println("Project")
	fmt.Println("=======")
	if p, err := project.Load(layout.ProjectDir); err == nil {
		fmt.Printf("  %-16s %s %s\n", "name", p.Name, p.Version)
		if p.RequiresPython != "" {
			fmt.Printf("  %-16s %s\n", "requires-python", p.RequiresPython)
		}
		fmt.Printf("  %-16s %d\n", "dependencies", len(p.Dependencies))
	} else {
		fmt.Printf("  %-16s %s\n", "pyproject.toml", "not found")
	}
	fmt.Printf("  %-16s %s\n", "directory", layout.ProjectDir)
	fmt.Printf("  %-16s %s\n", "manifest", manifestState(layout.ProjectDir, cfg.Project.SyncedDigest))

	fmt.Println()
	fmt.Println("Environment")
	fmt.Println("===========")
	fmt.Printf("  %-16s %s\n", "uv", orMissing(globalService.UVVersion(ctx)))
	fmt.Printf("  %-16s %s\n", "python", orMissing(globalService.PythonVersion(ctx)))
	fmt.Printf("  %-16s %s\n", "install root", layout.Root)
	venv := "missing"
	if _, err := os.Stat(layout.VenvPython); err == nil {
		venv = layout.VenvDir
	}
	fmt.Printf("  %-16s %s\n", "virtualenv", venv)

	fmt.Println()
	fmt.Println("Sources")
	fmt.Println("=======")
	fmt.Printf("  %-16s %s\n", "pip", sourceName(cfg.Env.PipSource))
	fmt.Printf("  %-16s %s\n", "python", sourceName(cfg.Env.PythonSource))
	fmt.Printf("  %-16s %s\n", "uv", cfg.Env.EnvSource)
	return nil
}

func sourceName(url string) string {
	if label, ok := mirror.LabelFor(url); ok {
		return fmt.Sprintf("%s (%s)", label, url)
	}
	return url
}

// manifestState compares the current manifest digest with the one recorded
// by the last successful dependency install.
func manifestState(dir, synced string) string {
	digest, err := project.ManifestDigest(dir)
	if err != nil {
		return "unreadable"
	}
	if digest == "" {
		return "no pyproject.toml or uv.lock"
	}
	switch synced {
	case "":
		return "never synced"
	case digest:
		return "unchanged since last sync"
	default:
		return "changed since last sync"
	}
}
