// Package psp downloads and unpacks the PSP (Czech Chamber of Deputies)
// open data archives.
package psp

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/legislature-data/cz-psp-pipeline/internal/transport"
	"github.com/legislature-data/cz-psp-pipeline/pkg/constants"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
	"github.com/legislature-data/cz-psp-pipeline/pkg/logging"
)

// Default archive URLs published by the PSP open data portal.
const (
	DefaultMembersURL = "https://www.psp.cz/eknih/cdrom/opendata/poslanci.zip"
	DefaultVotesURL   = "https://www.psp.cz/eknih/cdrom/opendata/hl-2025ps.zip"
)

// Source fetches PSP archives over HTTP.
type Source struct {
	client *transport.Client
}

// New creates a Source with a download-sized timeout.
func New() *Source {
	return &Source{
		client: transport.NewWithClient(&http.Client{Timeout: constants.DownloadTimeout}),
	}
}

// NewWithTransport creates a Source using the given transport client.
func NewWithTransport(client *transport.Client) *Source {
	return &Source{client: client}
}

// Fetch downloads url to destPath atomically.
func (s *Source) Fetch(ctx context.Context, url, destPath string) error {
	logging.Ctx(ctx).Info().Str("url", url).Str("dest", destPath).Msg("Downloading archive")
	return s.client.DownloadFile(ctx, url, destPath)
}

// Unpack extracts all entries of the zip at zipPath into destDir and returns
// the entry names. Entries that would escape destDir are rejected.
func Unpack(ctx context.Context, zipPath, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, constants.DirPermissions); err != nil {
		return nil, errors.WrapIO("create", destDir, err)
	}

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, errors.WrapParse("zip", zipPath, err)
	}
	defer zr.Close() //nolint:errcheck

	log := logging.Ctx(ctx)
	log.Info().Str("zip", zipPath).Str("dest", destDir).Int("entries", len(zr.File)).Msg("Unpacking archive")

	names := make([]string, 0, len(zr.File))
	for _, entry := range zr.File {
		names = append(names, entry.Name)
		log.Debug().Str("entry", entry.Name).Msg("Extracting")
		if err := extractEntry(entry, destDir); err != nil {
			return nil, err
		}
	}
	return names, nil
}

func extractEntry(entry *zip.File, destDir string) error {
	cleaned := filepath.Clean(entry.Name)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return &errors.ValidationError{
			Field:   "zip entry",
			Value:   entry.Name,
			Message: "path escapes destination directory",
		}
	}
	target := filepath.Join(destDir, cleaned)

	if entry.FileInfo().IsDir() {
		return errors.WrapIO("create", target, os.MkdirAll(target, constants.DirPermissions))
	}
	if err := os.MkdirAll(filepath.Dir(target), constants.DirPermissions); err != nil {
		return errors.WrapIO("create", filepath.Dir(target), err)
	}

	rc, err := entry.Open()
	if err != nil {
		return errors.WrapParse("zip", entry.Name, err)
	}
	defer rc.Close() //nolint:errcheck

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, constants.FilePermissions)
	if err != nil {
		return errors.WrapIO("create", target, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return errors.WrapIO("write", target, err)
	}
	return errors.WrapIO("close", target, f.Close())
}

// FetchAndUnpack downloads the archive and extracts it in one step.
func (s *Source) FetchAndUnpack(ctx context.Context, url, zipPath, rawDir string) ([]string, error) {
	if err := s.Fetch(ctx, url, zipPath); err != nil {
		return nil, err
	}
	return Unpack(ctx, zipPath, rawDir)
}
