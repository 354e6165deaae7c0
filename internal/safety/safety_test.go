package safety

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestEntryTarget(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		entry   string
		strip   int
		want    string // relative to root, "" when skipped
		wantErr bool
	}{
		{"plain", "python/bin/python3", 0, "python/bin/python3", false},
		{"dot prefix", "./python/lib", 0, "python/lib", false},
		{"strip wrapper dir", "uv-x86_64-unknown-linux-gnu/uv", 1, "uv", false},
		{"strip consumes entry", "uv-x86_64-unknown-linux-gnu/", 1, "", false},
		{"archive root", "./", 0, "", false},
		{"empty", "", 0, "", false},
		{"parent traversal", "../escape.txt", 0, "", true},
		{"nested traversal", "python/../../escape", 0, "", true},
		{"traversal after strip", "wrap/../../escape", 1, "", true},
		{"absolute", "/etc/passwd", 0, "", true},
		{"absolute with strip", "/etc/cron.d/x", 1, "", true},
		{"dot dot inside name ok", "python/lib/a..b", 0, "python/lib/a..b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := EntryTarget(root, tt.entry, tt.strip)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EntryTarget(%q) error = %v, wantErr %v", tt.entry, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.want == "" {
				if ok {
					t.Errorf("EntryTarget(%q) = %q, want skipped", tt.entry, got)
				}
				return
			}
			want := filepath.Join(root, filepath.FromSlash(tt.want))
			if !ok || got != want {
				t.Errorf("EntryTarget(%q) = %q, %v, want %q", tt.entry, got, ok, want)
			}
		})
	}
}

func TestLinkTarget(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(root, "python", "bin", "python3")
	if err := os.MkdirAll(filepath.Dir(link), 0755); err != nil {
		t.Fatal(err)
	}

	if err := LinkTarget(root, link, "python3.11"); err != nil {
		t.Errorf("sibling link rejected: %v", err)
	}
	if err := LinkTarget(root, link, "../lib/libpython3.11.so"); err != nil {
		t.Errorf("in-tree link rejected: %v", err)
	}
	for _, bad := range []string{"", "/usr/bin/python3", "../../../etc/passwd", "lib/../..", "sub/l/.."} {
		if err := LinkTarget(root, link, bad); err == nil {
			t.Errorf("LinkTarget(%q) expected error", bad)
		}
	}
}

func TestParentWithin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	base := t.TempDir()
	root := filepath.Join(base, "dest")
	if err := os.MkdirAll(filepath.Join(root, "lib"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("lib", filepath.Join(root, "current")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(base, filepath.Join(root, "out")); err != nil {
		t.Fatal(err)
	}

	ok := []string{
		filepath.Join(root, "file.txt"),
		filepath.Join(root, "lib", "a", "b", "c.txt"),
		filepath.Join(root, "current", "c.txt"),
	}
	for _, target := range ok {
		if err := ParentWithin(root, target); err != nil {
			t.Errorf("ParentWithin(%s) error = %v", target, err)
		}
	}
	for _, target := range []string{
		filepath.Join(root, "out", "evil.txt"),
		filepath.Join(root, "out", "missing", "evil.txt"),
	} {
		if err := ParentWithin(root, target); err == nil {
			t.Errorf("ParentWithin(%s) expected error", target)
		}
	}
}

func TestWithin(t *testing.T) {
	root := t.TempDir()
	if _, err := Within(root, filepath.Join(root, "child", "file.txt")); err != nil {
		t.Fatalf("Within failed for child path: %v", err)
	}
	if _, err := Within(root, filepath.Join(root, "..", "escape")); err == nil {
		t.Fatal("expected escape path to fail")
	}
}

func TestSourceURL(t *testing.T) {
	u, err := SourceURL(" https://pypi.tuna.tsinghua.edu.cn/simple ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Path != "/simple" {
		t.Errorf("path = %q", u.Path)
	}

	for _, raw := range []string{"ftp://example.com", "https://", "https://user:pw@example.com", "::", "file:///tmp/x"} {
		if _, err := SourceURL(raw); err == nil {
			t.Errorf("SourceURL(%q) expected error", raw)
		}
	}
}

func TestProbeHost(t *testing.T) {
	host, err := ProbeHost("https://mirrors.aliyun.com:443/pypi/simple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "mirrors.aliyun.com" {
		t.Errorf("host = %q", host)
	}
	if _, err := ProbeHost("https://-c/simple"); err == nil {
		t.Error("expected option-like host to be rejected")
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet(strings.NewReader("  not found\n"), 64); got != "not found" {
		t.Errorf("Snippet() = %q", got)
	}
	if got := Snippet(strings.NewReader("abcdef"), 3); got != "abc..." {
		t.Errorf("Snippet() truncated = %q", got)
	}
	if got := Snippet(strings.NewReader("abc"), 0); got != "" {
		t.Errorf("Snippet() zero limit = %q", got)
	}
}
