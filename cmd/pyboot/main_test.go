package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BadgerOps/pyboot/internal/config"
	"github.com/BadgerOps/pyboot/internal/envs"
	"github.com/BadgerOps/pyboot/internal/mirror"
	"github.com/BadgerOps/pyboot/internal/progress"
	"github.com/BadgerOps/pyboot/internal/store"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	_ = w.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading captured stdout: %v", err)
	}
	_ = r.Close()
	return string(data)
}

// useTestConfig installs a config store backed by a temp file as the global config.
func useTestConfig(t *testing.T) *config.Store {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Project.Dir = dir
	st := config.NewStore(filepath.Join(dir, "pyboot.yaml"), cfg)

	origCfg, origLogger := globalCfg, logger
	globalCfg = st
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Cleanup(func() {
		globalCfg = origCfg
		logger = origLogger
	})
	return st
}

func useTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	orig := globalStore
	globalStore = st
	t.Cleanup(func() {
		globalStore = orig
		_ = st.Close()
	})
	return st
}

func TestProgressPrinterLineMode(t *testing.T) {
	var buf bytes.Buffer
	p := &progressPrinter{out: &buf}
	fn := p.Func()

	fn(progress.Indeterminate, "downloading uv.tar.gz")
	fn(0.10, "downloading uv.tar.gz (1 MiB / 10 MiB)")
	fn(0.15, "downloading uv.tar.gz (1.5 MiB / 10 MiB)")
	fn(0.30, "downloading uv.tar.gz (3 MiB / 10 MiB)")
	fn(progress.Done, "installed uv.tar.gz")
	fn(progress.Failed, "failed to create virtual environment")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"[....] downloading uv.tar.gz",
		"[ 10%] downloading uv.tar.gz (1 MiB / 10 MiB)",
		"[ 30%] downloading uv.tar.gz (3 MiB / 10 MiB)",
		"[ ok ] installed uv.tar.gz",
		"[fail] failed to create virtual environment",
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("output:\n%s\nwant:\n%s", strings.Join(lines, "\n"), strings.Join(want, "\n"))
	}
}

func TestProgressPrinterTTYRedraws(t *testing.T) {
	var buf bytes.Buffer
	p := &progressPrinter{out: &buf, tty: true}
	fn := p.Func()

	fn(progress.Indeterminate, "testing pip source speed...")
	fn(progress.Indeterminate, "PyPI took 45ms")
	fn(progress.Done, "done")

	out := buf.String()
	if strings.Count(out, "\r") != 3 {
		t.Errorf("expected 3 carriage returns, got %q", out)
	}
	if !strings.HasSuffix(out, "[ ok ] done"+strings.Repeat(" ", len("[....] PyPI took 45ms")-len("[ ok ] done"))+"\n") {
		t.Errorf("final line not padded over the previous one: %q", out)
	}
}

func TestProgressPrinterQuiet(t *testing.T) {
	p := &progressPrinter{out: io.Discard, quiet: true}
	if p.Func() != nil {
		t.Error("quiet printer should return a nil callback")
	}
}

func TestConfigSetRun(t *testing.T) {
	st := useTestConfig(t)

	out := captureStdout(t, func() {
		if err := configSetRun(nil, []string{"env.pip_source", "https://mirrors.aliyun.com/pypi/simple"}); err != nil {
			t.Fatalf("configSetRun returned error: %v", err)
		}
	})
	if !strings.Contains(out, "env.pip_source = https://mirrors.aliyun.com/pypi/simple") {
		t.Errorf("unexpected output: %s", out)
	}

	saved, err := config.Load(st.Path())
	if err != nil {
		t.Fatalf("reloading config: %v", err)
	}
	if saved.Env.PipSource != "https://mirrors.aliyun.com/pypi/simple" {
		t.Errorf("persisted pip_source = %q", saved.Env.PipSource)
	}
}

func TestConfigSetRunRejectsBadInput(t *testing.T) {
	st := useTestConfig(t)

	if err := configSetRun(nil, []string{"env.unknown", "x"}); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := configSetRun(nil, []string{"env.probe_workers", "0"}); err == nil {
		t.Error("expected error for invalid worker count")
	}
	if _, err := os.Stat(st.Path()); !os.IsNotExist(err) {
		t.Errorf("config file written despite invalid input: %v", err)
	}
}

func TestConfigShowRun(t *testing.T) {
	useTestConfig(t)

	out := captureStdout(t, func() {
		if err := configShowRun(nil, nil); err != nil {
			t.Fatalf("configShowRun returned error: %v", err)
		}
	})
	if !strings.Contains(out, "pip_source: "+config.DefaultPipSource) {
		t.Errorf("expected pip_source in output, got: %s", out)
	}
}

func TestSourceListRunMarksCurrent(t *testing.T) {
	st := useTestConfig(t)
	custom := "https://pypi.internal.example.com/simple"
	if err := st.Update(func(c *config.Config) { c.Env.PipSource = custom }); err != nil {
		t.Fatal(err)
	}

	out := captureStdout(t, func() {
		if err := sourceListRun(nil, nil); err != nil {
			t.Fatalf("sourceListRun returned error: %v", err)
		}
	})
	if !strings.Contains(out, "(custom)") || !strings.Contains(out, custom) {
		t.Errorf("expected custom source in output, got: %s", out)
	}
	for _, src := range mirror.InterpreterSources {
		if !strings.Contains(out, src.URL) {
			t.Errorf("missing interpreter source %s", src.Label)
		}
	}
}

func TestHistoryRunsRun(t *testing.T) {
	st := useTestStore(t)

	out := captureStdout(t, func() {
		if err := historyRunsRun(nil, nil); err != nil {
			t.Fatalf("historyRunsRun returned error: %v", err)
		}
	})
	if !strings.Contains(out, "No runs recorded.") {
		t.Fatalf("expected empty message, got: %s", out)
	}

	st.StepFinished(envs.StepSync, false, "failed to install dependencies", time.Second)
	out = captureStdout(t, func() {
		if err := historyRunsRun(nil, nil); err != nil {
			t.Fatalf("historyRunsRun returned error: %v", err)
		}
	})
	if !strings.Contains(out, "sync") || !strings.Contains(out, "failed") || !strings.Contains(out, "1s") {
		t.Errorf("expected failed sync run in output, got: %s", out)
	}
}

func TestHistoryProbesRun(t *testing.T) {
	st := useTestStore(t)
	st.SourcesProbed(mirror.CategoryPackageIndex, []mirror.ProbeResult{
		{Source: mirror.Source{Label: "B", URL: "https://b.example.com"}, LatencyMs: 45},
		{Source: mirror.Source{Label: "A", URL: "https://a.example.com"}, LatencyMs: mirror.SentinelLatencyMs},
	}, mirror.Choice{Label: "B", URL: "https://b.example.com", LatencyMs: 45})

	out := captureStdout(t, func() {
		if err := historyProbesRun(nil, nil); err != nil {
			t.Fatalf("historyProbesRun returned error: %v", err)
		}
	})
	if !strings.Contains(out, "* B") || !strings.Contains(out, "45ms") {
		t.Errorf("expected selected source in output, got: %s", out)
	}
	if !strings.Contains(out, "unreachable") {
		t.Errorf("expected unreachable marker, got: %s", out)
	}
	if !strings.Contains(out, "interpreter: no probes recorded") {
		t.Errorf("expected empty interpreter section, got: %s", out)
	}
}

func TestManifestState(t *testing.T) {
	dir := t.TempDir()
	if got := manifestState(dir, ""); got != "no pyproject.toml or uv.lock" {
		t.Errorf("manifestState() = %q", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte("[project]\nname = \"demo\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := manifestState(dir, ""); got != "never synced" {
		t.Errorf("manifestState() = %q", got)
	}
	if got := manifestState(dir, "stale"); got != "changed since last sync" {
		t.Errorf("manifestState() = %q", got)
	}
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()
	for _, path := range [][]string{
		{"install", "all"},
		{"install", "uv"},
		{"source", "pip"},
		{"config", "set"},
		{"history", "probes"},
		{"which-uv"},
		{"status"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not found: %v", path, err)
		}
	}
}

func TestExecuteFlushesAfterFailedStep(t *testing.T) {
	origCfg, origService, origStore, origMetrics, origLogger := globalCfg, globalService, globalStore, globalMetrics, logger
	t.Cleanup(func() {
		globalCfg, globalService, globalStore, globalMetrics, logger = origCfg, origService, origStore, origMetrics, origLogger
		cfgPath, projectDir, metricsTextfile, quiet = "", "", "", false
	})

	dir := t.TempDir()
	project := filepath.Join(dir, "project")
	if err := os.MkdirAll(project, 0755); err != nil {
		t.Fatal(err)
	}
	prom := filepath.Join(dir, "pyboot.prom")

	// No uv has been installed, so creating the venv fails.
	err := execute(context.Background(), []string{
		"--config", filepath.Join(dir, "pyboot.yaml"),
		"--project", project,
		"--quiet",
		"--log-level", "error",
		"--metrics-textfile", prom,
		"install", "venv",
	})
	if err == nil || err.Error() != "failed to create virtual environment" {
		t.Fatalf("execute() error = %v", err)
	}

	data, err := os.ReadFile(prom)
	if err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}
	if !strings.Contains(string(data), `pyboot_step_total{result="failed",step="create-venv"} 1`) {
		t.Errorf("failed step missing from metrics:\n%s", data)
	}

	if globalStore != nil {
		t.Error("history store left open")
	}
	st, err := store.New(filepath.Join(project, ".install", historyDBName), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	runs, err := st.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Operation != envs.StepCreateVenv || runs[0].Success {
		t.Errorf("runs = %+v, want one failed %s", runs, envs.StepCreateVenv)
	}
}
