package download

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

type testEntry struct {
	name     string
	body     string
	dir      bool
	linkname string
}

func writeTestZip(t *testing.T, path string, entries []testEntry) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		name := e.name
		if e.dir {
			name += "/"
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if !e.dir {
			if _, err := io.WriteString(w, e.body); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func tarBytes(t *testing.T, entries []testEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0755}
		switch {
		case e.dir:
			hdr.Typeflag = tar.TypeDir
			hdr.Name += "/"
		case e.linkname != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.linkname
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", e.name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.WriteString(tw, e.body); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeCompressed(t *testing.T, path string, data []byte) {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch filepath.Ext(path) {
	case ".gz":
		w = gzip.NewWriter(&buf)
	case ".zst":
		w, err = zstd.NewWriter(&buf)
	case ".xz":
		w, err = xz.NewWriter(&buf)
	default:
		t.Fatalf("unsupported test format %s", path)
	}
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func assertFileContent(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if string(got) != want {
		t.Errorf("%s = %q, want %q", path, got, want)
	}
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "uv-x86_64-pc-windows-msvc.zip")
	writeTestZip(t, archive, []testEntry{
		{name: "uv.exe", body: "uv binary"},
		{name: "docs", dir: true},
		{name: "docs/README.txt", body: "readme"},
	})

	dest := filepath.Join(dir, "uv")
	n, err := Extract(archive, dest, ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if n != 2 {
		t.Errorf("extracted %d files, want 2", n)
	}
	assertFileContent(t, filepath.Join(dest, "uv.exe"), "uv binary")
	assertFileContent(t, filepath.Join(dest, "docs", "README.txt"), "readme")
}

func TestExtractTarFormats(t *testing.T) {
	entries := []testEntry{
		{name: "uv-x86_64-unknown-linux-gnu", dir: true},
		{name: "uv-x86_64-unknown-linux-gnu/uv", body: "uv binary"},
		{name: "uv-x86_64-unknown-linux-gnu/uvx", body: "uvx binary"},
	}

	for _, ext := range []string{".tar.gz", ".tar.zst", ".tar.xz"} {
		t.Run(ext, func(t *testing.T) {
			dir := t.TempDir()
			archive := filepath.Join(dir, "uv"+ext)
			writeCompressed(t, archive, tarBytes(t, entries))

			dest := filepath.Join(dir, "out")
			n, err := Extract(archive, dest, ExtractOptions{StripComponents: 1})
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if n != 2 {
				t.Errorf("extracted %d files, want 2", n)
			}
			assertFileContent(t, filepath.Join(dest, "uv"), "uv binary")
			assertFileContent(t, filepath.Join(dest, "uvx"), "uvx binary")
		})
	}
}

func TestExtractTarSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	archive := filepath.Join(dir, "cpython.tar.gz")
	writeCompressed(t, archive, tarBytes(t, []testEntry{
		{name: "python/bin/python3.11", body: "interpreter"},
		{name: "python/bin/python3", linkname: "python3.11"},
	}))

	dest := filepath.Join(dir, "out")
	if _, err := Extract(archive, dest, ExtractOptions{StripComponents: 1}); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	assertFileContent(t, filepath.Join(dest, "bin", "python3"), "interpreter")
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()

	zipArchive := filepath.Join(dir, "evil.zip")
	writeTestZip(t, zipArchive, []testEntry{{name: "../escape.txt", body: "nope"}})
	if _, err := Extract(zipArchive, filepath.Join(dir, "zip-out"), ExtractOptions{}); err == nil {
		t.Error("expected zip traversal to fail")
	}

	tarArchive := filepath.Join(dir, "evil.tar.gz")
	writeCompressed(t, tarArchive, tarBytes(t, []testEntry{{name: "link", linkname: "../../etc/passwd"}}))
	if _, err := Extract(tarArchive, filepath.Join(dir, "tar-out"), ExtractOptions{}); err == nil {
		t.Error("expected escaping symlink to fail")
	}

	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); err == nil {
		t.Error("file escaped the destination directory")
	}
}

func TestExtractRejectsChainedSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	tests := []struct {
		name    string
		entries []testEntry
	}{
		{
			name: "dot dot through link",
			entries: []testEntry{
				{name: "sub", dir: true},
				{name: "sub/l", linkname: ".."},
				{name: "x", linkname: "sub/l/.."},
				{name: "x/evil.txt", body: "nope"},
			},
		},
		{
			name: "link defined before its hop",
			entries: []testEntry{
				{name: "sub", dir: true},
				{name: "x", linkname: "sub/l/../w"},
				{name: "sub/l", linkname: ".."},
				{name: "x/evil.txt", body: "nope"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			archive := filepath.Join(dir, "chain.tar.gz")
			writeCompressed(t, archive, tarBytes(t, tt.entries))

			dest := filepath.Join(dir, "dest")
			if _, err := Extract(archive, dest, ExtractOptions{}); err == nil {
				t.Error("expected chained link to fail extraction")
			}
			for _, p := range []string{filepath.Join(dir, "evil.txt"), filepath.Join(dir, "w", "evil.txt")} {
				if _, err := os.Stat(p); err == nil {
					t.Errorf("%s written outside the destination", p)
				}
			}
		})
	}
}

func TestExtractThroughInTreeDirLink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	archive := filepath.Join(dir, "cpython.tar.gz")
	writeCompressed(t, archive, tarBytes(t, []testEntry{
		{name: "python/lib/python3.11", dir: true},
		{name: "python/lib/current", linkname: "python3.11"},
		{name: "python/lib/current/os.py", body: "import sys"},
	}))

	dest := filepath.Join(dir, "out")
	if _, err := Extract(archive, dest, ExtractOptions{StripComponents: 1}); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	assertFileContent(t, filepath.Join(dest, "lib", "python3.11", "os.py"), "import sys")
}

func TestExtractReplacesLinkWithFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	archive := filepath.Join(dir, "uv.tar.gz")
	writeCompressed(t, archive, tarBytes(t, []testEntry{
		{name: "target.txt", body: "original"},
		{name: "uv", linkname: "target.txt"},
		{name: "uv", body: "uv binary"},
	}))

	dest := filepath.Join(dir, "out")
	if _, err := Extract(archive, dest, ExtractOptions{}); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	assertFileContent(t, filepath.Join(dest, "uv"), "uv binary")
	assertFileContent(t, filepath.Join(dest, "target.txt"), "original")
}

func TestExtractUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.rar")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Extract(path, t.TempDir(), ExtractOptions{})
	if !errors.Is(err, ErrUnsupportedArchive) {
		t.Fatalf("expected ErrUnsupportedArchive, got %v", err)
	}
}
