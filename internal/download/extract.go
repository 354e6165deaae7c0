package download

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BadgerOps/pyboot/internal/safety"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// ErrUnsupportedArchive is returned for archive names with an unknown suffix.
var ErrUnsupportedArchive = errors.New("unsupported archive format")

// ExtractOptions controls archive extraction.
type ExtractOptions struct {
	// StripComponents drops this many leading path elements from every entry,
	// like tar --strip-components. Entries left empty are skipped.
	StripComponents int
}

// Extract unpacks archivePath into destDir and returns the number of regular
// files written. The format is chosen from the file suffix: .zip, .tar.gz,
// .tgz, .tar.zst, .tar.xz or plain .tar. Any entry that would land outside
// destDir, by name or by following a link extracted earlier, fails the whole
// extraction.
func Extract(archivePath, destDir string, opts ExtractOptions) (int, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return 0, fmt.Errorf("creating %s: %w", destDir, err)
	}

	name := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return extractZip(archivePath, destDir, opts)
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return extractTar(archivePath, destDir, opts, func(r io.Reader) (io.Reader, func(), error) {
			gz, err := gzip.NewReader(r)
			if err != nil {
				return nil, nil, err
			}
			return gz, func() { gz.Close() }, nil
		})
	case strings.HasSuffix(name, ".tar.zst"):
		return extractTar(archivePath, destDir, opts, func(r io.Reader) (io.Reader, func(), error) {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, nil, err
			}
			return dec, dec.Close, nil
		})
	case strings.HasSuffix(name, ".tar.xz"):
		return extractTar(archivePath, destDir, opts, func(r io.Reader) (io.Reader, func(), error) {
			xr, err := xz.NewReader(r)
			if err != nil {
				return nil, nil, err
			}
			return xr, func() {}, nil
		})
	case strings.HasSuffix(name, ".tar"):
		return extractTar(archivePath, destDir, opts, func(r io.Reader) (io.Reader, func(), error) {
			return r, func() {}, nil
		})
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Base(archivePath))
	}
}

func extractZip(archivePath, destDir string, opts ExtractOptions) (int, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, fmt.Errorf("opening zip %s: %w", archivePath, err)
	}
	defer r.Close()

	files := 0
	for _, f := range r.File {
		target, ok, err := safety.EntryTarget(destDir, f.Name, opts.StripComponents)
		if err != nil {
			return files, fmt.Errorf("zip %s: %w", filepath.Base(archivePath), err)
		}
		if !ok {
			continue
		}
		if err := safety.ParentWithin(destDir, target); err != nil {
			return files, fmt.Errorf("zip %s: %w", filepath.Base(archivePath), err)
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return files, fmt.Errorf("creating directory %s: %w", target, err)
			}
		case mode&os.ModeSymlink != 0:
			// Windows tool archives do not carry links.
			continue
		default:
			rc, err := f.Open()
			if err != nil {
				return files, fmt.Errorf("opening zip entry %q: %w", f.Name, err)
			}
			err = writeFile(target, rc, mode.Perm())
			rc.Close()
			if err != nil {
				return files, err
			}
			files++
		}
	}
	return files, nil
}

func extractTar(archivePath, destDir string, opts ExtractOptions, wrap func(io.Reader) (io.Reader, func(), error)) (int, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	defer f.Close()

	r, closeFn, err := wrap(f)
	if err != nil {
		return 0, fmt.Errorf("decompressing %s: %w", archivePath, err)
	}
	defer closeFn()

	tr := tar.NewReader(r)
	files := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return files, fmt.Errorf("reading tar %s: %w", archivePath, err)
		}

		target, ok, err := safety.EntryTarget(destDir, hdr.Name, opts.StripComponents)
		if err != nil {
			return files, fmt.Errorf("tar %s: %w", filepath.Base(archivePath), err)
		}
		if !ok {
			continue
		}
		if err := safety.ParentWithin(destDir, target); err != nil {
			return files, fmt.Errorf("tar %s: %w", filepath.Base(archivePath), err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return files, fmt.Errorf("creating directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return files, err
			}
			files++
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return files, fmt.Errorf("creating directory for %s: %w", target, err)
			}
			if err := safety.LinkTarget(destDir, target, hdr.Linkname); err != nil {
				return files, fmt.Errorf("tar %s: %w", filepath.Base(archivePath), err)
			}
			if err := writeSymlink(target, hdr.Linkname); err != nil {
				return files, err
			}
		case tar.TypeLink:
			source, ok, err := safety.EntryTarget(destDir, hdr.Linkname, opts.StripComponents)
			if err != nil {
				return files, fmt.Errorf("tar %s: hard link %q: %w", filepath.Base(archivePath), hdr.Name, err)
			}
			if !ok {
				continue
			}
			if err := safety.ParentWithin(destDir, source); err != nil {
				return files, fmt.Errorf("tar %s: hard link %q: %w", filepath.Base(archivePath), hdr.Name, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return files, fmt.Errorf("creating directory for %s: %w", target, err)
			}
			_ = os.Remove(target)
			if err := os.Link(source, target); err != nil {
				return files, fmt.Errorf("linking %s: %w", target, err)
			}
			files++
		}
	}
}

// writeSymlink replaces target with a symlink to linkname.
func writeSymlink(target, linkname string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", target, err)
	}
	_ = os.Remove(target)
	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("linking %s: %w", target, err)
	}
	return nil
}

// writeFile writes r to target. An existing symlink at target is replaced,
// never written through.
func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", target, err)
	}
	if fi, err := os.Lstat(target); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("replacing link %s: %w", target, err)
		}
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return out.Close()
}
