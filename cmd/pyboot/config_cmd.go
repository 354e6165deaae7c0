package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/BadgerOps/pyboot/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage pyboot configuration. Subcommands allow viewing and modifying
configuration settings.`,
		Example: `  pyboot config show
  pyboot config set env.pip_source https://pypi.org/simple`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration in YAML format, including any
command-line overrides.`,
		Example: `  pyboot config show
  pyboot config show --config ./pyboot.yaml`,
		Args: cobra.NoArgs,
		RunE: configShowRun,
	}
}

func configShowRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	cfg := globalCfg.Get()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Printf("# %s\n", globalCfg.Path())
	fmt.Print(string(data))
	return nil
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long: `Set a configuration value using dot-notation for nested keys.
Changes are written back to the config file.

Keys:
  env.root_dir env.uv_path env.python_path
  env.pip_source env.python_source env.env_source env.probe_workers
  project.dir project.python_version project.python_build project.bundle_name`,
		Example: `  pyboot config set env.pip_source https://mirrors.aliyun.com/pypi/simple
  pyboot config set project.python_version 3.12.4
  pyboot config set env.probe_workers 4`,
		Args: cobra.ExactArgs(2),
		RunE: configSetRun,
	}
}

func configSetRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	key, value := args[0], args[1]

	// Reject bad keys and values before touching the file.
	probe := globalCfg.Get()
	if err := probe.Set(key, value); err != nil {
		return err
	}

	var setErr error
	if err := globalCfg.Update(func(c *config.Config) { setErr = c.Set(key, value) }); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	if setErr != nil {
		return setErr
	}

	log.Info("configuration updated", "key", key, "value", value, "path", globalCfg.Path())
	fmt.Printf("%s = %s\n", key, value)
	return nil
}
