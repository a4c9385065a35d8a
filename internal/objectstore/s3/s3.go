// Package s3 implements the object store on any S3-compatible endpoint. It
// exists for mirrors that speak S3 instead of the B2 native API; a custom
// endpoint with path-style addressing covers the usual compatible providers.
package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/legislature-data/cz-psp-pipeline/internal/objectstore"
	"github.com/legislature-data/cz-psp-pipeline/pkg/constants"
	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
)

// Config carries S3 credentials and addressing.
type Config struct {
	Endpoint        string // empty means AWS proper
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string // optional override for PublicURL
}

// FromEnv reads the S3_* environment variables. Endpoint and public base URL
// are optional; everything else must be set.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Endpoint:        os.Getenv("S3_ENDPOINT"),
		Region:          os.Getenv("S3_REGION"),
		Bucket:          os.Getenv("S3_BUCKET"),
		AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
	}
	if cfg.Region == "" || cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("S3_REGION/S3_BUCKET/S3_ACCESS_KEY_ID/S3_SECRET_ACCESS_KEY: %w", errors.ErrCredentialsMissing)
	}
	return cfg, nil
}

// Client implements objectstore.Store on the AWS SDK.
type Client struct {
	cfg *Config
	s3  *awss3.Client
}

// New builds an S3 client with static credentials.
func New(ctx context.Context, cfg *Config) (*Client, error) {
	awscfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, errors.WrapAPI("s3", 0, err)
	}

	client := awss3.NewFromConfig(awscfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Client{cfg: cfg, s3: client}, nil
}

// NewWithClient wraps a prebuilt SDK client, for tests.
func NewWithClient(cfg *Config, client *awss3.Client) *Client {
	return &Client{cfg: cfg, s3: client}
}

func (c *Client) Provider() string { return "s3" }
func (c *Client) Bucket() string   { return c.cfg.Bucket }

// PublicURL returns the anonymously readable URL for key.
func (c *Client) PublicURL(key string) string {
	key = strings.TrimPrefix(key, "/")
	if c.cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(c.cfg.PublicBaseURL, "/") + "/" + key
	}
	if c.cfg.Endpoint != "" {
		return strings.TrimSuffix(c.cfg.Endpoint, "/") + "/" + c.cfg.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.cfg.Bucket, c.cfg.Region, key)
}

// Upload stores the local file under key.
func (c *Client) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return errors.WrapIO("read", localPath, err)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return errors.WrapIO("read", localPath, err)
	}

	_, err = c.s3.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(c.cfg.Bucket),
		Key:           aws.String(strings.TrimPrefix(key, "/")),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return errors.WrapAPI("s3", 0, err)
	}
	return nil
}

// Download fetches key into localPath through a temporary file.
func (c *Client) Download(ctx context.Context, key, localPath string) error {
	out, err := c.s3.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(strings.TrimPrefix(key, "/")),
	})
	if err != nil {
		return errors.WrapAPI("s3", 0, err)
	}
	defer out.Body.Close() //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(localPath), constants.DirPermissions); err != nil {
		return errors.WrapIO("create", filepath.Dir(localPath), err)
	}
	tmpPath := localPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.WrapIO("create", tmpPath, err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return errors.WrapIO("write", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapIO("close", tmpPath, err)
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		return errors.WrapIO("write", localPath, err)
	}
	return nil
}

// List returns all objects under prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]objectstore.Object, error) {
	var objects []objectstore.Object
	paginator := awss3.NewListObjectsV2Paginator(c.s3, &awss3.ListObjectsV2Input{
		Bucket: aws.String(c.cfg.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.WrapAPI("s3", 0, err)
		}
		for _, obj := range page.Contents {
			o := objectstore.Object{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				o.UploadedAt = obj.LastModified.UTC()
			}
			objects = append(objects, o)
		}
	}
	return objects, nil
}

// Delete removes one object.
func (c *Client) Delete(ctx context.Context, obj objectstore.Object) error {
	_, err := c.s3.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(obj.Key),
	})
	if err != nil {
		return errors.WrapAPI("s3", 0, err)
	}
	return nil
}
