// Package snapshot publishes the standardized tables as timestamped object
// storage snapshots and maintains the committed latest.json pointer files.
package snapshot

import (
	"context"
	"crypto/sha1" //nolint:gosec // B2 keys snapshots by SHA-1
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/legislature-data/cz-psp-pipeline/internal/objectstore"
	"github.com/legislature-data/cz-psp-pipeline/internal/schema"
	"github.com/legislature-data/cz-psp-pipeline/pkg/constants"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
	"github.com/legislature-data/cz-psp-pipeline/pkg/logging"
)

// Dataset is one published table: its pointer name, the local file and the
// snapshot format extension.
type Dataset struct {
	Name      string
	LocalPath string
	Format    string // "csv" or "parquet"
}

// TermRef identifies the term a pointer belongs to.
type TermRef struct {
	Identifier string
	OrgID      string
}

// Publisher uploads snapshots and writes pointers. With a nil store it still
// writes local pointers, with empty locations, so a run without credentials
// produces a consistent data directory.
type Publisher struct {
	store  objectstore.Store
	prefix string
	retain int
	now    func() time.Time
}

// NewPublisher builds a publisher for the given store (nil means local-only)
// and remote key prefix.
func NewPublisher(store objectstore.Store, prefix string) *Publisher {
	return &Publisher{
		store:  store,
		prefix: strings.TrimSuffix(prefix, "/"),
		retain: constants.SnapshotRetain,
		now:    time.Now,
	}
}

// WithClock overrides the timestamp source, for tests.
func (p *Publisher) WithClock(now func() time.Time) *Publisher {
	p.now = now
	return p
}

// SnapshotKey returns the remote key for a dataset snapshot taken at ts.
func (p *Publisher) SnapshotKey(d Dataset, ts time.Time) string {
	stamp := ts.UTC().Format(constants.SnapshotTimeFormat)
	return fmt.Sprintf("%s/%s/snapshots/%s.snapshot-%s.%s", p.prefix, d.Name, d.Name, stamp, d.Format)
}

// Published describes one uploaded snapshot, for run bookkeeping.
type Published struct {
	Dataset    string
	Key        string
	Provider   string
	Bucket     string
	Size       int64
	SHA1       string
	UploadedAt time.Time
}

// Publish uploads a snapshot of every dataset, prunes old snapshots, writes
// the pointer under dataDir/<name>/latest.json and mirrors the pointer to the
// remote prefix. All datasets share one timestamp. Without a store the
// returned slice is empty and only local pointers are written.
func (p *Publisher) Publish(ctx context.Context, datasets []Dataset, dataDir string, term TermRef) ([]Published, error) {
	log := logging.Ctx(ctx)
	ts := p.now()

	var published []Published
	for _, d := range datasets {
		var locations []Location

		if p.store != nil {
			key := p.SnapshotKey(d, ts)
			if err := p.store.Upload(ctx, d.LocalPath, key); err != nil {
				return nil, err
			}
			log.Info().Str("dataset", d.Name).Str("key", key).Msg("Uploaded snapshot")

			if err := p.pruneSnapshots(ctx, p.prefix+"/"+d.Name+"/snapshots/"); err != nil {
				return nil, err
			}

			locations = append(locations, Location{
				Provider: p.store.Provider(),
				Bucket:   p.store.Bucket(),
				Key:      key,
				URI:      p.store.Provider() + "://" + p.store.Bucket() + "/" + key,
			})

			size, digest, err := fileDigest(d.LocalPath)
			if err != nil {
				return nil, err
			}
			published = append(published, Published{
				Dataset:    d.Name,
				Key:        key,
				Provider:   p.store.Provider(),
				Bucket:     p.store.Bucket(),
				Size:       size,
				SHA1:       digest,
				UploadedAt: ts.UTC(),
			})
		}

		pointerPath := filepath.Join(dataDir, d.Name, "latest.json")
		pointer := Pointer{
			Locations:      locations,
			TermIdentifier: term.Identifier,
			TermOrgID:      term.OrgID,
			GeneratedAt:    ts.UTC().Format(time.RFC3339),
		}
		if pointer.Locations == nil {
			pointer.Locations = []Location{}
		}
		if err := schema.WriteJSON(pointerPath, pointer); err != nil {
			return nil, err
		}
		log.Info().Str("dataset", d.Name).Str("path", pointerPath).Msg("Wrote pointer")

		if p.store != nil {
			if err := p.store.Upload(ctx, pointerPath, p.prefix+"/"+d.Name+"/latest.json"); err != nil {
				return nil, err
			}
		}
	}
	return published, nil
}

// fileDigest returns the size and hex SHA-1 of a local file.
func fileDigest(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", errors.WrapIO("read", path, err)
	}
	defer f.Close() //nolint:errcheck

	h := sha1.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return 0, "", errors.WrapIO("read", path, err)
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}

// pruneSnapshots deletes everything under prefix beyond the newest retain
// snapshots. The timestamped key layout makes lexicographic order match
// chronological order.
func (p *Publisher) pruneSnapshots(ctx context.Context, prefix string) error {
	objects, err := p.store.List(ctx, prefix)
	if err != nil {
		return err
	}
	if len(objects) <= p.retain {
		return nil
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key > objects[j].Key })
	for _, obj := range objects[p.retain:] {
		if err := p.store.Delete(ctx, obj); err != nil {
			return err
		}
		logging.Ctx(ctx).Info().Str("key", obj.Key).Msg("Pruned snapshot")
	}
	return nil
}
