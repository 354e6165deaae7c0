package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/BadgerOps/pyboot/internal/progress"
	"github.com/BadgerOps/pyboot/internal/safety"
)

// unknownSizeReportStep is how often byte progress is reported when the
// server does not send a Content-Length.
const unknownSizeReportStep = 4 << 20

// Request names an archive to fetch and where to unpack it.
type Request struct {
	BaseURL         string // mirror or release base, archive name is appended
	Release         string // optional release folder between BaseURL and ArchiveName
	ArchiveName     string
	BaseDir         string // environment root; the archive is staged in <BaseDir>/downloads
	TargetDir       string
	StripComponents int
	ExpectedSHA256  string
}

// Service downloads environment archives and unpacks them in place.
type Service struct {
	client *Client
	logger *slog.Logger
}

// NewService creates a download/extract service on top of client.
func NewService(client *Client, logger *slog.Logger) *Service {
	return &Service{client: client, logger: logger}
}

// ArchiveURL joins a base URL, an optional release folder and an archive
// name. Release folders are the date tags mirrors of GitHub releases publish
// under.
func ArchiveURL(baseURL, release, archiveName string) (string, error) {
	if _, err := safety.SourceURL(baseURL); err != nil {
		return "", fmt.Errorf("invalid download base %q: %w", baseURL, err)
	}
	if !pathSegment(archiveName) {
		return "", fmt.Errorf("invalid archive name %q", archiveName)
	}

	u := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if release != "" {
		if !pathSegment(release) {
			return "", fmt.Errorf("invalid release %q", release)
		}
		u += "/" + url.PathEscape(release)
	}
	return u + "/" + url.PathEscape(archiveName), nil
}

func pathSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// DownloadAndExtract fetches req.ArchiveName and extracts it into
// req.TargetDir. Byte progress is reported as a fraction below 1; Done is
// reported only after extraction succeeds. The staged archive is removed
// once extracted.
func (s *Service) DownloadAndExtract(ctx context.Context, req Request, fn progress.Func) error {
	archiveURL, err := ArchiveURL(req.BaseURL, req.Release, req.ArchiveName)
	if err != nil {
		progress.Report(fn, progress.Failed, err.Error())
		return err
	}

	stagePath := filepath.Join(req.BaseDir, "downloads", req.ArchiveName)
	msg := fmt.Sprintf("downloading %s", req.ArchiveName)
	progress.Report(fn, progress.Indeterminate, msg)
	s.logger.Info("downloading archive", "url", archiveURL, "dest", stagePath)

	var lastReported int64
	result, err := s.client.Download(ctx, DownloadOptions{
		URL:              archiveURL,
		DestPath:         stagePath,
		ExpectedChecksum: req.ExpectedSHA256,
		OnProgress: func(current, total int64) {
			step := int64(unknownSizeReportStep)
			if total > 0 {
				step = total / 100
			}
			if current-lastReported < step && current != total {
				return
			}
			lastReported = current
			progress.Report(fn, progress.Bytes(current, total), byteMessage(req.ArchiveName, current, total))
		},
	})
	if err != nil {
		progress.Report(fn, progress.Failed, fmt.Sprintf("failed to download %s", req.ArchiveName))
		return fmt.Errorf("downloading %s: %w", req.ArchiveName, err)
	}

	progress.Report(fn, progress.Indeterminate, fmt.Sprintf("extracting %s", req.ArchiveName))
	files, err := s.ExtractFile(result.Path, req.TargetDir, req.StripComponents)
	if err != nil {
		progress.Report(fn, progress.Failed, fmt.Sprintf("failed to extract %s", req.ArchiveName))
		return err
	}

	if err := os.Remove(result.Path); err != nil {
		s.logger.Warn("failed to remove staged archive", "path", result.Path, "error", err)
	}

	s.logger.Info("archive installed",
		"archive", req.ArchiveName,
		"target", req.TargetDir,
		"files", files,
		"bytes", result.Size,
		"duration", result.Duration)
	progress.Report(fn, progress.Done, fmt.Sprintf("installed %s", req.ArchiveName))
	return nil
}

// ExtractFile unpacks a local archive into destDir.
func (s *Service) ExtractFile(archivePath, destDir string, stripComponents int) (int, error) {
	files, err := Extract(archivePath, destDir, ExtractOptions{StripComponents: stripComponents})
	if err != nil {
		return files, fmt.Errorf("extracting %s: %w", filepath.Base(archivePath), err)
	}
	return files, nil
}

func byteMessage(name string, current, total int64) string {
	if total > 0 {
		return fmt.Sprintf("downloading %s (%s / %s)", name, humanize.IBytes(uint64(current)), humanize.IBytes(uint64(total)))
	}
	return fmt.Sprintf("downloading %s (%s)", name, humanize.IBytes(uint64(current)))
}
