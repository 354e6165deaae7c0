package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPipSource is the package index used until a mirror is selected.
	DefaultPipSource = "https://pypi.org/simple"
	// DefaultPythonSource is the interpreter archive origin used until a mirror is selected.
	DefaultPythonSource = "https://github.com/astral-sh/python-build-standalone/releases/download"
	// DefaultEnvSource is where tool archives (uv) are fetched from.
	DefaultEnvSource = "https://github.com/astral-sh/uv/releases/latest/download"
	// DefaultPythonVersion is the interpreter version provisioned when neither
	// the config nor the project pins one.
	DefaultPythonVersion = "3.11.9"
	// DefaultPythonBuild is the python-build-standalone release tag the
	// interpreter archive is taken from. It must publish DefaultPythonVersion.
	DefaultPythonBuild = "20240726"
	// DefaultBundleName is the pre-bundled wheel archive looked up under the env root.
	DefaultBundleName = "python-environment.zip"

	// DefaultConfigFile is the config file name searched for and created in the working directory.
	DefaultConfigFile = "pyboot.yaml"
)

// Config is the top-level configuration
type Config struct {
	Env     EnvConfig     `yaml:"env"`
	Project ProjectConfig `yaml:"project"`
}

// EnvConfig holds tool locations and the selected download sources
type EnvConfig struct {
	RootDir      string `yaml:"root_dir"`
	UVPath       string `yaml:"uv_path"`
	PythonPath   string `yaml:"python_path"`
	PipSource    string `yaml:"pip_source"`
	PythonSource string `yaml:"python_source"`
	EnvSource    string `yaml:"env_source"`
	ProbeWorkers int    `yaml:"probe_workers"`
}

// ProjectConfig describes the Python project being provisioned
type ProjectConfig struct {
	Dir           string `yaml:"dir"`
	PythonVersion string `yaml:"python_version"`
	PythonBuild   string `yaml:"python_build"`
	BundleName    string `yaml:"bundle_name"`
	SyncedDigest  string `yaml:"synced_digest,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Env: EnvConfig{
			PipSource:    DefaultPipSource,
			PythonSource: DefaultPythonSource,
			EnvSource:    DefaultEnvSource,
			ProbeWorkers: 1,
		},
		Project: ProjectConfig{
			Dir:         ".",
			PythonBuild: DefaultPythonBuild,
			BundleName:  DefaultBundleName,
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to path, replacing the file atomically.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{DefaultConfigFile}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "pyboot", DefaultConfigFile),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// Layout returns the fixed filesystem layout for the host platform.
func (c *Config) Layout() Layout {
	return c.LayoutFor(runtime.GOOS)
}

// LayoutFor returns the filesystem layout for the given GOOS.
func (c *Config) LayoutFor(goos string) Layout {
	projectDir := c.Project.Dir
	if projectDir == "" {
		projectDir = "."
	}
	if abs, err := filepath.Abs(projectDir); err == nil {
		projectDir = abs
	}

	root := c.Env.RootDir
	if root == "" {
		root = filepath.Join(projectDir, ".install")
	}

	bundle := c.Project.BundleName
	if bundle == "" {
		bundle = DefaultBundleName
	}

	l := Layout{
		ProjectDir:   projectDir,
		Root:         root,
		UVDir:        filepath.Join(root, "uv"),
		PythonDir:    filepath.Join(root, "python"),
		WheelsDir:    filepath.Join(root, "wheels"),
		DownloadsDir: filepath.Join(root, "downloads"),
		VenvDir:      filepath.Join(projectDir, ".venv"),
		Bundle:       filepath.Join(root, bundle),
	}
	if goos == "windows" {
		l.UVExe = filepath.Join(l.UVDir, "uv.exe")
		l.VenvPython = filepath.Join(l.VenvDir, "Scripts", "python.exe")
	} else {
		l.UVExe = filepath.Join(l.UVDir, "uv")
		l.VenvPython = filepath.Join(l.VenvDir, "bin", "python")
	}
	return l
}

// Set assigns a value using dot-notation, e.g. "env.pip_source".
func (c *Config) Set(key, value string) error {
	switch strings.ToLower(key) {
	case "env.root_dir":
		c.Env.RootDir = value
	case "env.uv_path":
		c.Env.UVPath = value
	case "env.python_path":
		c.Env.PythonPath = value
	case "env.pip_source":
		c.Env.PipSource = value
	case "env.python_source":
		c.Env.PythonSource = value
	case "env.env_source":
		c.Env.EnvSource = value
	case "env.probe_workers":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("env.probe_workers must be a positive integer, got %q", value)
		}
		c.Env.ProbeWorkers = n
	case "project.dir":
		c.Project.Dir = value
	case "project.python_version":
		c.Project.PythonVersion = value
	case "project.python_build":
		c.Project.PythonBuild = value
	case "project.bundle_name":
		c.Project.BundleName = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}
