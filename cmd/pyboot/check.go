package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check whether the environment matches the declared dependencies",
		Long: `Run "uv sync --check" against the project virtual environment. Exits
non-zero when the environment is out of sync.`,
		Args: cobra.NoArgs,
		RunE: checkRun,
	}
}

func checkRun(cmd *cobra.Command, args []string) error {
	if globalService == nil {
		return fmt.Errorf("service not initialized")
	}
	p := newProgressPrinter(os.Stdout, quiet)

	if !globalService.CheckSyncStatus(cmd.Context(), p.Func()) {
		return fmt.Errorf("environment is out of sync, run \"pyboot install sync\"")
	}
	fmt.Println("Environment is in sync.")
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show pyboot, uv and Python versions",
		Args:  cobra.NoArgs,
		RunE:  versionRun,
	}
}

func versionRun(cmd *cobra.Command, args []string) error {
	if globalService == nil {
		return fmt.Errorf("service not initialized")
	}
	ctx := cmd.Context()

	fmt.Printf("%-8s %s\n", "pyboot", version)
	fmt.Printf("%-8s %s\n", "uv", orMissing(globalService.UVVersion(ctx)))
	fmt.Printf("%-8s %s\n", "python", orMissing(globalService.PythonVersion(ctx)))
	return nil
}

func newWhichUVCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "which-uv",
		Short: "Show the uv found on the system PATH",
		Args:  cobra.NoArgs,
		RunE:  whichUVRun,
	}
}

func whichUVRun(cmd *cobra.Command, args []string) error {
	if globalService == nil {
		return fmt.Errorf("service not initialized")
	}

	path, ok := globalService.SystemUVPath(cmd.Context())
	if !ok {
		return fmt.Errorf("uv not found on PATH")
	}
	fmt.Println(path)
	return nil
}

func orMissing(v string, ok bool) string {
	if !ok {
		return "not installed"
	}
	return v
}
