package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var installSelectSources bool

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Provision parts of the Python environment",
		Long: `Provision the Python environment. Each subcommand runs one step; "all"
runs the complete sequence: install uv, reinstall the interpreter and the
virtual environment, then install dependencies.`,
		Example: `  pyboot install all
  pyboot install all --select-sources
  pyboot install sync`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "uv",
			Short: "Install the bundled uv package manager",
			Args:  cobra.NoArgs,
			RunE:  installUVRun,
		},
		&cobra.Command{
			Use:   "python",
			Short: "Download the standalone Python interpreter",
			Args:  cobra.NoArgs,
			RunE:  installPythonRun,
		},
		&cobra.Command{
			Use:   "venv",
			Short: "Create the project virtual environment",
			Args:  cobra.NoArgs,
			RunE:  installVenvRun,
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Install the project dependencies into the virtual environment",
			Long: `Install the project dependencies with uv sync. If the pre-bundled wheel
archive exists under the install root it is unpacked into the wheel cache
first, allowing offline installs.`,
			Args: cobra.NoArgs,
			RunE: installSyncRun,
		},
		newInstallAllCmd(),
	)

	return cmd
}

func newInstallAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Run the full provisioning sequence",
		Args:  cobra.NoArgs,
		RunE:  installAllRun,
	}
	cmd.Flags().BoolVar(&installSelectSources, "select-sources", false, "pick the fastest mirrors before installing")
	return cmd
}

func installUVRun(cmd *cobra.Command, args []string) error {
	if globalService == nil {
		return fmt.Errorf("service not initialized")
	}
	p := newProgressPrinter(os.Stdout, quiet)

	ok, msg := globalService.InstallUV(cmd.Context(), p.Func())
	if !ok {
		return errors.New(msg)
	}
	if !quiet {
		fmt.Println(msg)
	}
	return nil
}

func installPythonRun(cmd *cobra.Command, args []string) error {
	if globalService == nil {
		return fmt.Errorf("service not initialized")
	}
	p := newProgressPrinter(os.Stdout, quiet)

	if !globalService.InstallPython(cmd.Context(), p.Func()) {
		return fmt.Errorf("failed to install Python, try switching the Python download source with \"pyboot source python\"")
	}
	return nil
}

func installVenvRun(cmd *cobra.Command, args []string) error {
	if globalService == nil {
		return fmt.Errorf("service not initialized")
	}
	p := newProgressPrinter(os.Stdout, quiet)

	if !globalService.CreateVenv(cmd.Context(), p.Func()) {
		return fmt.Errorf("failed to create virtual environment")
	}
	return nil
}

func installSyncRun(cmd *cobra.Command, args []string) error {
	if globalService == nil {
		return fmt.Errorf("service not initialized")
	}
	p := newProgressPrinter(os.Stdout, quiet)

	if ok, msg := globalService.Sync(cmd.Context(), p.Func()); !ok {
		return errors.New(msg)
	}
	return nil
}

func installAllRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalService == nil {
		return fmt.Errorf("service not initialized")
	}
	ctx := cmd.Context()
	fn := newProgressPrinter(os.Stdout, quiet).Func()

	if installSelectSources {
		if _, ok := globalService.ChooseBestPipSource(ctx, fn); !ok {
			log.Warn("pip source selection failed, keeping current source")
		}
		if _, ok := globalService.ChooseBestPythonSource(ctx, fn); !ok {
			log.Warn("Python source selection failed, keeping current source")
		}
	}

	if ok, msg := globalService.InstallUV(ctx, fn); !ok {
		return errors.New(msg)
	}
	if ok, msg := globalService.FullInstall(ctx, fn); !ok {
		return errors.New(msg)
	}
	if ok, msg := globalService.Sync(ctx, fn); !ok {
		return errors.New(msg)
	}

	if !quiet {
		fmt.Println("Python environment ready:", globalService.Layout().VenvPython)
	}
	return nil
}
