package envs

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	uvVersionPattern     = regexp.MustCompile(`^uv\s+(\d+\.\d+\.\d+\S*)`)
	pythonVersionPattern = regexp.MustCompile(`^Python\s+(\d+\.\d+\.\d+\S*)`)
)

// parseToolVersion extracts the version from "<tool> X.Y.Z [...]" output.
// Anything else yields no version rather than a guessed slice.
func parseToolVersion(pattern *regexp.Regexp, output string) (string, bool) {
	line := strings.TrimSpace(firstLine(output))
	m := pattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// acceptSystemTool reports whether a resolver result points at the uv executable.
func acceptSystemTool(goos, path string) bool {
	if path == "" {
		return false
	}
	if goos == "windows" {
		return strings.HasSuffix(strings.ToLower(path), "uv.exe")
	}
	return filepath.Base(path) == "uv"
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
