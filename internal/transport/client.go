// Package transport provides the shared HTTP client used for PSP downloads,
// schema fetches and the Backblaze B2 API.
package transport

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/legislature-data/cz-psp-pipeline/pkg/constants"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
var DefaultHTTPTimeout = constants.DefaultHTTPTimeout

// Client provides HTTP client functionality with consistent timeouts
// and typed errors.
type Client struct {
	http *http.Client
}

// New creates a new transport client with the default timeout.
func New() *Client {
	return &Client{
		http: &http.Client{Timeout: DefaultHTTPTimeout},
	}
}

// NewWithClient wraps an existing http.Client. Used by tests and by callers
// that need a longer timeout (archive downloads, snapshot uploads).
func NewWithClient(hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{http: hc}
}

// Do performs an HTTP request.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapAPI("http", 0, err)
	}
	return c.http.Do(req)
}

// DownloadFile streams a GET response to destPath. The body is written to a
// temporary sibling file first and renamed into place on success, so a failed
// download never leaves a truncated file behind.
func (c *Client) DownloadFile(ctx context.Context, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), constants.DirPermissions); err != nil {
		return errors.WrapIO("create", filepath.Dir(destPath), err)
	}

	resp, err := c.Get(ctx, url)
	if err != nil {
		return errors.WrapAPI("http", 0, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &errors.APIError{
			Service:    "http",
			StatusCode: resp.StatusCode,
			Message:    "download failed",
			Endpoint:   url,
		}
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.WrapIO("create", tmpPath, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return errors.WrapIO("write", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapIO("close", tmpPath, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return errors.WrapIO("write", destPath, err)
	}
	return nil
}
