// Package b2 talks to the Backblaze B2 native API. Authorization, bucket
// resolution and upload URLs are cached per client; public downloads go
// through the anonymous file URL so readers need no credentials.
package b2

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/legislature-data/cz-psp-pipeline/internal/objectstore"
	"github.com/legislature-data/cz-psp-pipeline/internal/transport"
	"github.com/legislature-data/cz-psp-pipeline/pkg/constants"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
)

const (
	authorizeURL      = "https://api.backblazeb2.com/b2api/v2/b2_authorize_account"
	publicDownloadURL = "https://f000.backblazeb2.com/file"

	listPageSize = 1000
)

// Config carries B2 credentials and the target bucket.
type Config struct {
	KeyID  string
	AppKey string
	Bucket string
}

// FromEnv reads B2_KEY_ID, B2_APP_KEY and B2_BUCKET. All three must be set;
// a partial configuration is treated the same as none.
func FromEnv() (*Config, error) {
	cfg := &Config{
		KeyID:  os.Getenv("B2_KEY_ID"),
		AppKey: os.Getenv("B2_APP_KEY"),
		Bucket: os.Getenv("B2_BUCKET"),
	}
	if cfg.KeyID == "" || cfg.AppKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("B2_KEY_ID/B2_APP_KEY/B2_BUCKET: %w", errors.ErrCredentialsMissing)
	}
	return cfg, nil
}

// Client implements objectstore.Store against the B2 native API.
type Client struct {
	cfg    *Config
	client *transport.Client

	// testAPIBase reroutes every endpoint to a test server when set.
	testAPIBase string

	mu       sync.Mutex
	auth     *authResponse
	bucketID string
}

// New returns a B2 client. Authorization happens lazily on first use.
func New(cfg *Config) *Client {
	return &Client{
		cfg: cfg,
		client: transport.NewWithClient(&http.Client{
			Timeout: constants.UploadTimeout,
		}),
	}
}

// NewWithTransport overrides the HTTP layer, for tests.
func NewWithTransport(cfg *Config, client *transport.Client, apiBase string) *Client {
	c := New(cfg)
	c.client = client
	c.testAPIBase = apiBase
	return c
}

func (c *Client) Provider() string { return "b2" }
func (c *Client) Bucket() string   { return c.cfg.Bucket }

// PublicURL returns the anonymous download URL for key.
func (c *Client) PublicURL(key string) string {
	base := publicDownloadURL
	if c.testAPIBase != "" {
		base = c.testAPIBase + "/file"
	}
	return base + "/" + c.cfg.Bucket + "/" + strings.TrimPrefix(key, "/")
}

type authResponse struct {
	AccountID          string `json:"accountId"`
	APIURL             string `json:"apiUrl"`
	AuthorizationToken string `json:"authorizationToken"`
	DownloadURL        string `json:"downloadUrl"`
}

type bucketsResponse struct {
	Buckets []struct {
		BucketID   string `json:"bucketId"`
		BucketName string `json:"bucketName"`
	} `json:"buckets"`
}

type uploadURLResponse struct {
	UploadURL          string `json:"uploadUrl"`
	AuthorizationToken string `json:"authorizationToken"`
}

type fileListResponse struct {
	Files []struct {
		FileName        string `json:"fileName"`
		FileID          string `json:"fileId"`
		ContentLength   int64  `json:"contentLength"`
		UploadTimestamp int64  `json:"uploadTimestamp"`
	} `json:"files"`
	NextFileName *string `json:"nextFileName"`
}

// authorize performs b2_authorize_account with basic auth and resolves the
// bucket id. Results are cached for the client's lifetime.
func (c *Client) authorize(ctx context.Context) (*authResponse, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auth != nil {
		return c.auth, c.bucketID, nil
	}

	url := authorizeURL
	if c.testAPIBase != "" {
		url = c.testAPIBase + "/b2api/v2/b2_authorize_account"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", errors.WrapAPI("b2", 0, err)
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.AppKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", errors.WrapAPI("b2", 0, err)
	}
	var auth authResponse
	if err := transport.DecodeResponse("b2", resp, &auth); err != nil {
		return nil, "", err
	}
	if c.testAPIBase != "" {
		auth.APIURL = c.testAPIBase
		auth.DownloadURL = c.testAPIBase
	}

	var buckets bucketsResponse
	if err := c.post(ctx, auth.APIURL+"/b2api/v2/b2_list_buckets", auth.AuthorizationToken,
		map[string]string{"accountId": auth.AccountID}, &buckets); err != nil {
		return nil, "", err
	}
	bucketID := ""
	for _, b := range buckets.Buckets {
		if b.BucketName == c.cfg.Bucket {
			bucketID = b.BucketID
			break
		}
	}
	if bucketID == "" {
		return nil, "", errors.NewNotFoundError("b2 bucket", c.cfg.Bucket)
	}

	c.auth = &auth
	c.bucketID = bucketID
	return c.auth, c.bucketID, nil
}

// Upload stores localPath under key via b2_get_upload_url.
func (c *Client) Upload(ctx context.Context, localPath, key string) error {
	auth, bucketID, err := c.authorize(ctx)
	if err != nil {
		return err
	}

	var upload uploadURLResponse
	if err := c.post(ctx, auth.APIURL+"/b2api/v2/b2_get_upload_url", auth.AuthorizationToken,
		map[string]string{"bucketId": bucketID}, &upload); err != nil {
		return err
	}

	sum, size, err := fileSHA1(localPath)
	if err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return errors.WrapIO("read", localPath, err)
	}
	defer f.Close() //nolint:errcheck

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, upload.UploadURL, f)
	if err != nil {
		return errors.WrapAPI("b2", 0, err)
	}
	req.ContentLength = size
	req.Header.Set("Authorization", upload.AuthorizationToken)
	req.Header.Set("X-Bz-File-Name", strings.TrimPrefix(key, "/"))
	req.Header.Set("Content-Type", "b2/x-auto")
	req.Header.Set("X-Bz-Content-Sha1", sum)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.WrapAPI("b2", 0, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &errors.APIError{
			Service:    "b2",
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   "b2_upload_file",
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Download fetches key through the public file URL.
func (c *Client) Download(ctx context.Context, key, localPath string) error {
	return c.client.DownloadFile(ctx, c.PublicURL(key), localPath)
}

// List returns all objects under prefix, following list pagination.
func (c *Client) List(ctx context.Context, prefix string) ([]objectstore.Object, error) {
	auth, bucketID, err := c.authorize(ctx)
	if err != nil {
		return nil, err
	}

	var objects []objectstore.Object
	startName := ""
	for {
		body := map[string]any{
			"bucketId":     bucketID,
			"prefix":       prefix,
			"maxFileCount": listPageSize,
		}
		if startName != "" {
			body["startFileName"] = startName
		}
		var page fileListResponse
		if err := c.post(ctx, auth.APIURL+"/b2api/v2/b2_list_file_names", auth.AuthorizationToken, body, &page); err != nil {
			return nil, err
		}
		for _, f := range page.Files {
			objects = append(objects, objectstore.Object{
				Key:        f.FileName,
				ID:         f.FileID,
				Size:       f.ContentLength,
				UploadedAt: time.UnixMilli(f.UploadTimestamp).UTC(),
			})
		}
		if page.NextFileName == nil || *page.NextFileName == "" {
			return objects, nil
		}
		startName = *page.NextFileName
	}
}

// Delete removes one file version.
func (c *Client) Delete(ctx context.Context, obj objectstore.Object) error {
	auth, _, err := c.authorize(ctx)
	if err != nil {
		return err
	}
	return c.post(ctx, auth.APIURL+"/b2api/v2/b2_delete_file_version", auth.AuthorizationToken,
		map[string]string{"fileName": obj.Key, "fileId": obj.ID}, &struct{}{})
}

// post sends an authorized JSON request and decodes the JSON response.
func (c *Client) post(ctx context.Context, url, token string, body, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.WrapAPI("b2", 0, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.WrapAPI("b2", 0, err)
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.WrapAPI("b2", 0, err)
	}
	return transport.DecodeResponse("b2", resp, target)
}

// fileSHA1 hashes a file and reports its size.
func fileSHA1(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, errors.WrapIO("read", path, err)
	}
	defer f.Close() //nolint:errcheck

	h := sha1.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, errors.WrapIO("read", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
