// Package envs provisions the Python runtime: the uv tool, a standalone
// interpreter, the project virtual environment and its dependencies.
//
// Operations report progress through a progress.Func and collapse failures
// into a success flag plus a human-readable message; the cause is logged.
package envs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BadgerOps/pyboot/internal/config"
	"github.com/BadgerOps/pyboot/internal/download"
	"github.com/BadgerOps/pyboot/internal/mirror"
	"github.com/BadgerOps/pyboot/internal/progress"
	"github.com/BadgerOps/pyboot/internal/project"
	"github.com/BadgerOps/pyboot/internal/runner"
)

// Downloader fetches and unpacks environment archives.
type Downloader interface {
	DownloadAndExtract(ctx context.Context, req download.Request, fn progress.Func) error
	ExtractFile(archivePath, destDir string, stripComponents int) (int, error)
}

// PythonService runs the provisioning steps against the configured layout.
type PythonService struct {
	cfg        *config.Store
	runner     runner.Runner
	downloader Downloader
	selector   *mirror.Selector
	logger     *slog.Logger
	observers  []Observer

	goos   string
	goarch string
}

// NewPythonService creates a service for the host platform.
func NewPythonService(cfg *config.Store, r runner.Runner, d Downloader, sel *mirror.Selector, logger *slog.Logger) *PythonService {
	return &PythonService{
		cfg:        cfg,
		runner:     r,
		downloader: d,
		selector:   sel,
		logger:     logger,
		goos:       runtime.GOOS,
		goarch:     runtime.GOARCH,
	}
}

// AddObserver registers o for step and selection notifications.
func (s *PythonService) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// Layout returns the filesystem layout for the current configuration.
func (s *PythonService) Layout() config.Layout {
	cfg := s.cfg.Get()
	return cfg.LayoutFor(s.goos)
}

// InstallUV installs the bundled uv. It is a no-op when the configured uv
// already reports a version.
func (s *PythonService) InstallUV(ctx context.Context, fn progress.Func) (ok bool, msg string) {
	start := time.Now()
	defer func() { s.stepFinished(StepInstallUV, ok, msg, start) }()

	if _, installed := s.UVVersion(ctx); installed {
		msg = "uv already installed"
		s.logger.Info(msg)
		return true, msg
	}

	msg = "installing uv..."
	progress.Report(fn, progress.Indeterminate, msg)
	s.logger.Info(msg)

	triple, err := HostTriple(s.goos, s.goarch)
	if err != nil {
		s.logger.Error("cannot install uv", "error", err)
		return false, "failed to install uv: " + err.Error()
	}

	cfg := s.cfg.Get()
	l := cfg.LayoutFor(s.goos)
	err = s.downloader.DownloadAndExtract(ctx, download.Request{
		BaseURL:         cfg.Env.EnvSource,
		ArchiveName:     fmt.Sprintf("uv-%s%s", triple, archiveExt(s.goos)),
		BaseDir:         l.Root,
		TargetDir:       l.UVDir,
		StripComponents: uvArchiveStrip(s.goos),
	}, fn)
	if err != nil {
		s.logger.Error("uv install failed", "error", err)
		return false, "failed to install uv"
	}

	if cfg.Env.UVPath == "" || !fileExists(cfg.Env.UVPath) {
		if err := s.cfg.Update(func(c *config.Config) { c.Env.UVPath = l.UVExe }); err != nil {
			s.logger.Warn("failed to save uv path", "error", err)
		}
	}
	return true, "uv installed"
}

// InstallPython downloads the standalone interpreter for the configured
// version and build, and unpacks it where uv looks for managed interpreters:
// <PythonDir>/cpython-<version>-<os>-<arch>-<libc>.
func (s *PythonService) InstallPython(ctx context.Context, fn progress.Func) (ok bool) {
	start := time.Now()
	var msg string
	defer func() { s.stepFinished(StepInstallPython, ok, msg, start) }()

	cfg := s.cfg.Get()
	l := cfg.LayoutFor(s.goos)
	version := s.pythonVersion(cfg, l)

	build := cfg.Project.PythonBuild
	if build == "" {
		build = config.DefaultPythonBuild
	}

	triple, err := HostTriple(s.goos, s.goarch)
	var key string
	if err == nil {
		key, err = pythonInstallKey(version, s.goos, s.goarch)
	}
	if err == nil {
		err = s.downloader.DownloadAndExtract(ctx, download.Request{
			BaseURL:         cfg.Env.PythonSource,
			Release:         build,
			ArchiveName:     pythonArchive(version, build, triple),
			BaseDir:         l.Root,
			TargetDir:       filepath.Join(l.PythonDir, key),
			StripComponents: 1,
		}, fn)
	}

	ok = err == nil
	if ok {
		msg = "Python installed"
		s.logger.Info(msg, "version", version, "dir", filepath.Join(l.PythonDir, key))
	} else {
		msg = "failed to install Python"
		s.logger.Error(msg, "version", version, "build", build, "error", err)
	}
	progress.Outcome(fn, ok, msg)
	return ok
}

// CreateVenv creates the project virtual environment with uv, bound to the
// installed interpreter. uv is not allowed to download an interpreter itself.
func (s *PythonService) CreateVenv(ctx context.Context, fn progress.Func) (ok bool) {
	start := time.Now()
	var msg string
	defer func() { s.stepFinished(StepCreateVenv, ok, msg, start) }()

	msg = "creating virtual environment with uv..."
	progress.Report(fn, progress.Indeterminate, msg)
	s.logger.Info(msg)

	cfg := s.cfg.Get()
	l := cfg.LayoutFor(s.goos)
	_, err := s.runner.Run(ctx, runner.Command{
		Name: s.uvPath(cfg, l),
		Args: []string{
			"venv", l.VenvDir,
			"--python=" + s.pythonVersion(cfg, l),
			"--no-python-downloads",
		},
		Env: s.uvEnv(l),
		Dir: l.ProjectDir,
	})

	ok = err == nil
	if ok {
		msg = "virtual environment created"
		s.logger.Info(msg, "dir", l.VenvDir)
	} else {
		msg = "failed to create virtual environment"
		s.logger.Error(msg, "error", err)
	}
	progress.Outcome(fn, ok, msg)
	return ok
}

// Sync installs the declared dependencies into the virtual environment. A
// pre-bundled wheel archive, when present, is unpacked into the wheel cache
// first so uv can install without the network.
func (s *PythonService) Sync(ctx context.Context, fn progress.Func) (ok bool, msg string) {
	start := time.Now()
	defer func() { s.stepFinished(StepSync, ok, msg, start) }()

	msg = "installing dependencies with uv..."
	progress.Report(fn, progress.Indeterminate, msg)
	s.logger.Info(msg)

	cfg := s.cfg.Get()
	l := cfg.LayoutFor(s.goos)

	if fileExists(l.Bundle) {
		s.logger.Info("found environment bundle, extracting", "path", l.Bundle)
		if _, err := s.downloader.ExtractFile(l.Bundle, l.WheelsDir, 0); err != nil {
			s.logger.Warn("failed to extract environment bundle", "path", l.Bundle, "error", err)
		} else {
			s.logger.Info("environment bundle extracted, installing dependencies")
		}
	}

	// uv sync --find-links fails outright on a missing directory.
	if err := os.MkdirAll(l.WheelsDir, 0755); err != nil {
		s.logger.Error("failed to create wheel cache", "dir", l.WheelsDir, "error", err)
		msg = "failed to install dependencies"
		progress.Outcome(fn, false, msg)
		return false, msg
	}

	_, err := s.runner.Run(ctx, runner.Command{
		Name: s.uvPath(cfg, l),
		Args: []string{
			"sync",
			"--find-links", l.WheelsDir,
			"--default-index", cfg.Env.PipSource,
		},
		Env: s.uvProjectEnv(l),
		Dir: l.ProjectDir,
	})

	ok = err == nil
	if ok {
		msg = "dependencies installed"
		s.logger.Info(msg)
		s.recordSyncedDigest(l)
	} else {
		msg = "failed to install dependencies"
		s.logger.Error(msg, "error", err)
	}
	progress.Outcome(fn, ok, msg)
	return ok, msg
}

// CheckSyncStatus reports whether the environment already matches the
// declared dependencies.
func (s *PythonService) CheckSyncStatus(ctx context.Context, fn progress.Func) (ok bool) {
	start := time.Now()
	var msg string
	defer func() { s.stepFinished(StepCheckSync, ok, msg, start) }()

	progress.Report(fn, progress.Indeterminate, "checking environment sync status...")

	cfg := s.cfg.Get()
	l := cfg.LayoutFor(s.goos)
	_, err := s.runner.Run(ctx, runner.Command{
		Name: s.uvPath(cfg, l),
		Args: []string{"sync", "--check"},
		Env:  s.uvProjectEnv(l),
		Dir:  l.ProjectDir,
	})

	ok = err == nil
	if ok {
		msg = "environment is in sync"
	} else {
		msg = "environment is out of sync"
	}
	s.logger.Info(msg)
	return ok
}

// FullInstall reinstalls the interpreter and recreates the virtual
// environment from scratch. It is not transactional; every step is safe to
// repeat, so a failed run is retried by calling FullInstall again.
func (s *PythonService) FullInstall(ctx context.Context, fn progress.Func) (ok bool, msg string) {
	start := time.Now()
	defer func() { s.stepFinished(StepFullInstall, ok, msg, start) }()

	progress.Report(fn, progress.Indeterminate, "cleaning old files")

	l := s.Layout()
	if err := s.cfg.Update(func(c *config.Config) { c.Env.PythonPath = "" }); err != nil {
		s.logger.Warn("failed to clear python path", "error", err)
	}
	if err := os.RemoveAll(l.VenvDir); err != nil {
		s.logger.Error("failed to remove old virtual environment", "dir", l.VenvDir, "error", err)
		return false, "failed to remove old virtual environment"
	}

	if !s.InstallPython(ctx, fn) {
		return false, "failed to install Python, try switching the Python download source in settings"
	}

	if !s.CreateVenv(ctx, fn) {
		return false, "failed to create virtual environment"
	}

	if err := s.cfg.Update(func(c *config.Config) { c.Env.PythonPath = l.VenvPython }); err != nil {
		s.logger.Error("failed to save python path", "error", err)
		return false, "failed to save python path"
	}
	return true, "Python environment installed"
}

// UVVersion returns the version of the configured uv, if it is installed.
func (s *PythonService) UVVersion(ctx context.Context) (string, bool) {
	s.logger.Debug("checking uv version")
	return s.toolVersion(ctx, s.cfg.Get().Env.UVPath, "uv")
}

// PythonVersion returns the version of the configured interpreter, if any.
func (s *PythonService) PythonVersion(ctx context.Context) (string, bool) {
	s.logger.Debug("checking python version")
	return s.toolVersion(ctx, s.cfg.Get().Env.PythonPath, "python")
}

// SystemUVPath looks for a uv installed on the system PATH, separate from
// the bundled one.
func (s *PythonService) SystemUVPath(ctx context.Context) (string, bool) {
	s.logger.Debug("looking up uv on the system PATH")
	out, err := s.runner.Run(ctx, runner.Command{Name: whichCommand(s.goos), Args: []string{"uv"}})
	if err != nil {
		return "", false
	}
	path := firstLine(out)
	if !acceptSystemTool(s.goos, path) {
		return "", false
	}
	return path, true
}

// ChooseBestPipSource selects the fastest package index and saves it as the
// pip source.
func (s *PythonService) ChooseBestPipSource(ctx context.Context, fn progress.Func) (mirror.Choice, bool) {
	return s.chooseBest(ctx, mirror.CategoryPackageIndex, "pip source", fn,
		func(c *config.Config, src mirror.Source) { c.Env.PipSource = src.URL })
}

// ChooseBestPythonSource selects the fastest interpreter mirror and saves it
// as the Python download source.
func (s *PythonService) ChooseBestPythonSource(ctx context.Context, fn progress.Func) (mirror.Choice, bool) {
	return s.chooseBest(ctx, mirror.CategoryInterpreter, "Python download source", fn,
		func(c *config.Config, src mirror.Source) { c.Env.PythonSource = src.URL })
}

func (s *PythonService) chooseBest(ctx context.Context, category mirror.Category, name string, fn progress.Func, set func(*config.Config, mirror.Source)) (mirror.Choice, bool) {
	apply := func(src mirror.Source) error {
		return s.cfg.Update(func(c *config.Config) { set(c, src) })
	}

	choice, results, err := s.selector.ChooseBest(ctx, name, mirror.Sources(category), apply, fn)
	if len(results) > 0 && err == nil {
		for _, o := range s.observers {
			o.SourcesProbed(category, results, choice)
		}
	}
	if err != nil {
		if !errors.Is(err, mirror.ErrNoSources) {
			s.logger.Error("source selection failed", "category", category, "error", err)
		}
		return mirror.Choice{}, false
	}
	return choice, true
}

func (s *PythonService) toolVersion(ctx context.Context, path, tool string) (string, bool) {
	if path == "" || !fileExists(path) {
		return "", false
	}
	out, err := s.runner.Run(ctx, runner.Command{Name: path, Args: []string{"--version"}})
	if err != nil {
		return "", false
	}

	pattern := uvVersionPattern
	if tool == "python" {
		pattern = pythonVersionPattern
	}
	v, ok := parseToolVersion(pattern, out)
	if !ok {
		s.logger.Warn("unrecognized version output", "tool", tool, "output", out)
	}
	return v, ok
}

func (s *PythonService) pythonVersion(cfg config.Config, l config.Layout) string {
	if cfg.Project.PythonVersion != "" {
		return cfg.Project.PythonVersion
	}
	if v, ok := project.PinnedPython(l.ProjectDir); ok {
		return v
	}
	return config.DefaultPythonVersion
}

func (s *PythonService) uvPath(cfg config.Config, l config.Layout) string {
	if cfg.Env.UVPath != "" {
		return cfg.Env.UVPath
	}
	return l.UVExe
}

func (s *PythonService) uvEnv(l config.Layout) []string {
	return []string{"UV_PYTHON_INSTALL_DIR=" + l.PythonDir}
}

func (s *PythonService) uvProjectEnv(l config.Layout) []string {
	return append(s.uvEnv(l), "UV_PROJECT_ENVIRONMENT="+l.VenvDir)
}

func (s *PythonService) recordSyncedDigest(l config.Layout) {
	digest, err := project.ManifestDigest(l.ProjectDir)
	if err != nil {
		s.logger.Warn("failed to hash project manifest", "error", err)
		return
	}
	if err := s.cfg.Update(func(c *config.Config) { c.Project.SyncedDigest = digest }); err != nil {
		s.logger.Warn("failed to save manifest digest", "error", err)
	}
}

func (s *PythonService) stepFinished(step string, ok bool, msg string, start time.Time) {
	elapsed := time.Since(start)
	for _, o := range s.observers {
		o.StepFinished(step, ok, msg, elapsed)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
