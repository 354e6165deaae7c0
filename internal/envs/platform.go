package envs

import "fmt"

// HostTriple maps a GOOS/GOARCH pair to the target triple used in tool and
// interpreter archive names.
func HostTriple(goos, goarch string) (string, error) {
	var arch string
	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	default:
		return "", fmt.Errorf("unsupported architecture %q", goarch)
	}

	switch goos {
	case "windows":
		return arch + "-pc-windows-msvc", nil
	case "linux":
		return arch + "-unknown-linux-gnu", nil
	case "darwin":
		return arch + "-apple-darwin", nil
	default:
		return "", fmt.Errorf("unsupported operating system %q", goos)
	}
}

// pythonArchive is the install_only interpreter build published under the
// python-build-standalone release tag build. Every platform ships .tar.gz.
func pythonArchive(version, build, triple string) string {
	return fmt.Sprintf("cpython-%s+%s-%s-install_only.tar.gz", version, build, triple)
}

// pythonInstallKey is the directory name uv expects for a managed
// interpreter under UV_PYTHON_INSTALL_DIR, e.g. cpython-3.11.9-linux-x86_64-gnu.
func pythonInstallKey(version, goos, goarch string) (string, error) {
	var arch string
	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	default:
		return "", fmt.Errorf("unsupported architecture %q", goarch)
	}

	switch goos {
	case "linux":
		return fmt.Sprintf("cpython-%s-linux-%s-gnu", version, arch), nil
	case "darwin":
		return fmt.Sprintf("cpython-%s-macos-%s-none", version, arch), nil
	case "windows":
		return fmt.Sprintf("cpython-%s-windows-%s-none", version, arch), nil
	default:
		return "", fmt.Errorf("unsupported operating system %q", goos)
	}
}

// archiveExt is the uv archive format published for goos.
func archiveExt(goos string) string {
	if goos == "windows" {
		return ".zip"
	}
	return ".tar.gz"
}

// uvArchiveStrip is the number of leading directories in the uv archive.
// Windows zips hold uv.exe at the root; tarballs wrap it in uv-<triple>/.
func uvArchiveStrip(goos string) int {
	if goos == "windows" {
		return 0
	}
	return 1
}

// whichCommand is the OS facility that resolves a command on PATH.
func whichCommand(goos string) string {
	if goos == "windows" {
		return "where"
	}
	return "which"
}
