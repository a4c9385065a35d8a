package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/legislature-data/cz-psp-pipeline/internal/transport"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
)

// Location points at one stored copy of a snapshot.
type Location struct {
	Provider string `json:"provider"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	URI      string `json:"uri"`
}

// Pointer is the committed latest.json payload. Locations may be empty when
// the pipeline ran without storage credentials.
type Pointer struct {
	Locations      []Location `json:"locations"`
	TermIdentifier string     `json:"term_identifier"`
	TermOrgID      string     `json:"term_org_id"`
	GeneratedAt    string     `json:"generated_at"`
}

// ReadPointer loads a latest.json file.
func ReadPointer(path string) (*Pointer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	var p Pointer
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.WrapParse("json", path, err)
	}
	return &p, nil
}

const publicB2Base = "https://f000.backblazeb2.com/file"

// Downloader fetches snapshot files through pointer files, without
// credentials. Only B2 locations are dereferenceable anonymously.
type Downloader struct {
	client  *transport.Client
	baseURL string
}

// NewDownloader returns a pointer-driven downloader against the public B2
// endpoint.
func NewDownloader() *Downloader {
	return &Downloader{client: transport.New(), baseURL: publicB2Base}
}

// NewDownloaderWithBase overrides the public endpoint, for tests.
func NewDownloaderWithBase(client *transport.Client, baseURL string) *Downloader {
	return &Downloader{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Latest downloads the first location of the pointer at pointerPath into
// outPath.
func (d *Downloader) Latest(ctx context.Context, pointerPath, outPath string) error {
	pointer, err := ReadPointer(pointerPath)
	if err != nil {
		return err
	}
	if len(pointer.Locations) == 0 {
		return errors.NewValidationError("locations", pointerPath, "pointer has no locations")
	}
	loc := pointer.Locations[0]
	if loc.Provider != "b2" {
		return errors.NewValidationError("provider", loc.Provider, "unsupported pointer provider")
	}
	if loc.Bucket == "" || loc.Key == "" {
		return errors.NewValidationError("locations", pointerPath, "pointer location missing bucket or key")
	}
	url := d.baseURL + "/" + loc.Bucket + "/" + strings.TrimPrefix(loc.Key, "/")
	return d.client.DownloadFile(ctx, url, outPath)
}
