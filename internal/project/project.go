// Package project reads the manifest of the Python project being provisioned.
package project

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	ManifestFile      = "pyproject.toml"
	LockFile          = "uv.lock"
	PythonVersionFile = ".python-version"
)

// Project is the subset of pyproject.toml this tool cares about.
type Project struct {
	Name           string   `toml:"name"`
	Version        string   `toml:"version"`
	RequiresPython string   `toml:"requires-python"`
	Dependencies   []string `toml:"dependencies"`
}

type pyproject struct {
	Project Project `toml:"project"`
}

// Load parses <dir>/pyproject.toml.
func Load(dir string) (*Project, error) {
	path := filepath.Join(dir, ManifestFile)
	var doc pyproject
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &doc.Project, nil
}

// PinnedPython returns the interpreter version pinned in <dir>/.python-version.
// Comments and blank lines are ignored; the first remaining line wins.
func PinnedPython(dir string) (string, bool) {
	f, err := os.Open(filepath.Join(dir, PythonVersionFile))
	if err != nil {
		return "", false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, true
	}
	return "", false
}

// ManifestDigest hashes pyproject.toml and uv.lock so callers can tell
// whether declared dependencies changed since the last successful sync.
// Missing files contribute nothing; if both are missing the digest is "".
func ManifestDigest(dir string) (string, error) {
	h := sha256.New()
	found := false
	for _, name := range []string{ManifestFile, LockFile} {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("opening %s: %w", name, err)
		}
		found = true
		io.WriteString(h, name+"\x00")
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("hashing %s: %w", name, err)
		}
	}
	if !found {
		return "", nil
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
