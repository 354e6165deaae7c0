// Package safety holds the guards applied to untrusted input: archive entry
// names from downloaded tool archives and mirror URLs from configuration.
package safety

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

// EntryTarget maps an archive entry name to its location under destDir after
// dropping strip leading path elements. ok is false for entries with nothing
// left to extract (the archive root, or a prefix consumed by strip). Entries
// that would land outside destDir are an error, never silently skipped.
func EntryTarget(destDir, name string, strip int) (target string, ok bool, err error) {
	rel, ok := stripEntry(name, strip)
	if !ok {
		return "", false, nil
	}
	if path.IsAbs(rel) || filepath.IsAbs(filepath.FromSlash(rel)) || filepath.VolumeName(filepath.FromSlash(rel)) != "" {
		return "", false, fmt.Errorf("absolute entry %q", name)
	}

	clean := path.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false, fmt.Errorf("entry %q escapes the archive root", name)
	}

	target, err = Within(destDir, filepath.Join(destDir, filepath.FromSlash(clean)))
	if err != nil {
		return "", false, fmt.Errorf("entry %q: %w", name, err)
	}
	return target, true, nil
}

// LinkTarget checks that a symlink written at target pointing to linkname
// resolves inside destDir. Interpreter builds link bin/python3 to
// python3.X, which passes; anything pointing out of the tree does not.
//
// ".." is only accepted as leading elements, applied to the real directory of
// target; the rest only descends. The parent of target must already exist.
func LinkTarget(destDir, target, linkname string) error {
	if linkname == "" {
		return fmt.Errorf("empty link target for %s", target)
	}
	if path.IsAbs(linkname) || filepath.IsAbs(linkname) {
		return fmt.Errorf("absolute link target %q", linkname)
	}

	parts := strings.Split(filepath.ToSlash(linkname), "/")
	up := 0
	for up < len(parts) && parts[up] == ".." {
		up++
	}
	for _, p := range parts[up:] {
		if p == ".." {
			return fmt.Errorf("link %s -> %s: \"..\" after a path element", target, linkname)
		}
	}

	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", destDir, err)
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(target))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", filepath.Dir(target), err)
	}
	resolved := filepath.Join(dir, filepath.FromSlash(linkname))
	if _, err := Within(root, resolved); err != nil {
		return fmt.Errorf("link %s -> %s: %w", target, linkname, err)
	}
	return nil
}

// ParentWithin resolves the deepest existing directory above target through
// the filesystem and checks it still lies inside destDir. Entry names are
// checked as text by EntryTarget; this catches an entry written through a
// directory symlink extracted earlier.
func ParentWithin(destDir, target string) error {
	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", destDir, err)
	}

	dir := filepath.Dir(target)
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			if _, err := Within(root, resolved); err != nil {
				return fmt.Errorf("%s resolves outside %s", target, destDir)
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("resolve %s: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return fmt.Errorf("resolve %s: %w", target, err)
		}
		dir = parent
	}
}

// Within returns candidate as an absolute path if it lies inside root.
func Within(root, candidate string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", candidate, root)
	}
	return abs, nil
}

// stripEntry normalizes an entry name to slash form and removes n leading
// elements, like tar --strip-components.
func stripEntry(name string, n int) (string, bool) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	name = strings.TrimRight(name, "/")
	if name == "" || name == "." {
		return "", false
	}
	if n <= 0 {
		return name, true
	}

	// A leading slash is kept through stripping so absolute entries are
	// still rejected by the caller.
	lead := ""
	if strings.HasPrefix(name, "/") {
		lead = "/"
	}
	parts := strings.Split(strings.TrimLeft(name, "/"), "/")
	if len(parts) <= n {
		return "", false
	}
	return lead + strings.Join(parts[n:], "/"), true
}
