package snapshot_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legislature-data/cz-psp-pipeline/internal/objectstore"
	"github.com/legislature-data/cz-psp-pipeline/internal/snapshot"
	"github.com/legislature-data/cz-psp-pipeline/internal/transport"
)

// memStore is an in-memory objectstore.Store.
type memStore struct {
	objects map[string][]byte
	deleted []string
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (s *memStore) Provider() string { return "b2" }
func (s *memStore) Bucket() string   { return "psp-data" }

func (s *memStore) Upload(_ context.Context, localPath, key string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *memStore) Download(_ context.Context, key, localPath string) error {
	data, ok := s.objects[key]
	if !ok {
		return fmt.Errorf("no such key: %s", key)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (s *memStore) List(_ context.Context, prefix string) ([]objectstore.Object, error) {
	var objects []objectstore.Object
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, objectstore.Object{Key: key, ID: "id-" + key})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *memStore) Delete(_ context.Context, obj objectstore.Object) error {
	delete(s.objects, obj.Key)
	s.deleted = append(s.deleted, obj.Key)
	return nil
}

func (s *memStore) PublicURL(key string) string {
	return "https://example.org/file/psp-data/" + key
}

const prefix = "legislatures/cz-psp-data-2025-202x"

func writeLocal(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPublish(t *testing.T) {
	store := newMemStore()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")

	datasets := []snapshot.Dataset{
		{Name: "persons", LocalPath: writeLocal(t, dir, "persons.csv", "id,name\n"), Format: "csv"},
		{Name: "votes", LocalPath: writeLocal(t, dir, "votes.parquet", "PAR1"), Format: "parquet"},
	}
	term := snapshot.TermRef{Identifier: "10", OrgID: "psp:org:165"}

	at := time.Date(2025, 11, 19, 14, 5, 0, 0, time.UTC)
	publisher := snapshot.NewPublisher(store, prefix).WithClock(func() time.Time { return at })
	published, err := publisher.Publish(context.Background(), datasets, dataDir, term)
	require.NoError(t, err)

	t.Run("published records", func(t *testing.T) {
		require.Len(t, published, 2)
		assert.Equal(t, "persons", published[0].Dataset)
		assert.Equal(t, prefix+"/persons/snapshots/persons.snapshot-20251119T140500Z.csv", published[0].Key)
		assert.Equal(t, "b2", published[0].Provider)
		assert.Equal(t, int64(len("id,name\n")), published[0].Size)
		assert.Len(t, published[0].SHA1, 40)
		assert.Equal(t, at, published[0].UploadedAt)
	})

	t.Run("snapshot keys", func(t *testing.T) {
		assert.Contains(t, store.objects, prefix+"/persons/snapshots/persons.snapshot-20251119T140500Z.csv")
		assert.Contains(t, store.objects, prefix+"/votes/snapshots/votes.snapshot-20251119T140500Z.parquet")
	})

	t.Run("remote pointers", func(t *testing.T) {
		assert.Contains(t, store.objects, prefix+"/persons/latest.json")
		assert.Contains(t, store.objects, prefix+"/votes/latest.json")
	})

	t.Run("local pointer content", func(t *testing.T) {
		pointer, err := snapshot.ReadPointer(filepath.Join(dataDir, "persons", "latest.json"))
		require.NoError(t, err)
		require.Len(t, pointer.Locations, 1)
		loc := pointer.Locations[0]
		assert.Equal(t, "b2", loc.Provider)
		assert.Equal(t, "psp-data", loc.Bucket)
		assert.Equal(t, prefix+"/persons/snapshots/persons.snapshot-20251119T140500Z.csv", loc.Key)
		assert.Equal(t, "b2://psp-data/"+loc.Key, loc.URI)
		assert.Equal(t, "10", pointer.TermIdentifier)
		assert.Equal(t, "psp:org:165", pointer.TermOrgID)
		assert.Equal(t, "2025-11-19T14:05:00Z", pointer.GeneratedAt)
	})
}

func TestPublishWithoutStore(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	datasets := []snapshot.Dataset{
		{Name: "persons", LocalPath: writeLocal(t, dir, "persons.csv", "id,name\n"), Format: "csv"},
	}

	publisher := snapshot.NewPublisher(nil, prefix)
	published, err := publisher.Publish(context.Background(), datasets, dataDir, snapshot.TermRef{Identifier: "10", OrgID: "psp:org:165"})
	require.NoError(t, err)
	assert.Empty(t, published)

	pointer, err := snapshot.ReadPointer(filepath.Join(dataDir, "persons", "latest.json"))
	require.NoError(t, err)
	assert.NotNil(t, pointer.Locations)
	assert.Empty(t, pointer.Locations)
	assert.Equal(t, "10", pointer.TermIdentifier)
}

func TestPrune(t *testing.T) {
	store := newMemStore()
	dir := t.TempDir()
	local := writeLocal(t, dir, "persons.csv", "id,name\n")

	// Six earlier snapshots already in the bucket.
	for i := 0; i < 6; i++ {
		key := fmt.Sprintf("%s/persons/snapshots/persons.snapshot-2025110%dT000000Z.csv", prefix, i)
		store.objects[key] = []byte("old")
	}

	at := time.Date(2025, 11, 19, 14, 5, 0, 0, time.UTC)
	publisher := snapshot.NewPublisher(store, prefix).WithClock(func() time.Time { return at })
	datasets := []snapshot.Dataset{{Name: "persons", LocalPath: local, Format: "csv"}}
	_, err := publisher.Publish(context.Background(), datasets, dir, snapshot.TermRef{})
	require.NoError(t, err)

	objects, err := store.List(context.Background(), prefix+"/persons/snapshots/")
	require.NoError(t, err)
	assert.Len(t, objects, 5, "only the newest five snapshots survive")

	// The oldest two went away; the new snapshot stays.
	assert.Contains(t, store.deleted, prefix+"/persons/snapshots/persons.snapshot-20251100T000000Z.csv")
	assert.Contains(t, store.deleted, prefix+"/persons/snapshots/persons.snapshot-20251101T000000Z.csv")
	assert.Contains(t, store.objects, prefix+"/persons/snapshots/persons.snapshot-20251119T140500Z.csv")
}

func TestDownloaderLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/psp-data/"+prefix+"/votes/snapshots/votes.snapshot-20251119T140500Z.parquet" {
			_, _ = w.Write([]byte("PAR1"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	pointerPath := filepath.Join(dir, "latest.json")
	pointer := fmt.Sprintf(`{
  "locations": [{"provider": "b2", "bucket": "psp-data", "key": "%s/votes/snapshots/votes.snapshot-20251119T140500Z.parquet", "uri": "b2://psp-data/..."}],
  "term_identifier": "10", "term_org_id": "psp:org:165", "generated_at": "2025-11-19T14:05:00Z"
}`, prefix)
	require.NoError(t, os.WriteFile(pointerPath, []byte(pointer), 0o644))

	downloader := snapshot.NewDownloaderWithBase(transport.New(), srv.URL)
	outPath := filepath.Join(dir, "out", "votes.parquet")
	require.NoError(t, downloader.Latest(context.Background(), pointerPath, outPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(data))

	t.Run("empty locations", func(t *testing.T) {
		empty := filepath.Join(dir, "empty.json")
		require.NoError(t, os.WriteFile(empty, []byte(`{"locations": []}`), 0o644))
		err := downloader.Latest(context.Background(), empty, outPath)
		assert.ErrorContains(t, err, "no locations")
	})

	t.Run("unsupported provider", func(t *testing.T) {
		other := filepath.Join(dir, "other.json")
		require.NoError(t, os.WriteFile(other, []byte(`{"locations": [{"provider": "gcs", "bucket": "b", "key": "k"}]}`), 0o644))
		err := downloader.Latest(context.Background(), other, outPath)
		assert.ErrorContains(t, err, "unsupported pointer provider")
	})
}
