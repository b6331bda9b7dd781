package s3client

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bstardust/photo-gps-resolver/internal/logger"
)

// Config represents the configuration for an S3 client
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// Client reads objects from an S3-compatible store
type Client struct {
	client *minio.Client
	config Config
}

// New creates a new S3 client. Bucket may be left empty when every object is
// addressed by an s3:// URL.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("S3 endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("S3 access key and secret key are required")
	}

	// Remove protocol prefix if present
	endpoint := cfg.Endpoint
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	logger.Debug("S3 client for endpoint %s ready", endpoint)

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// Open returns the content of an object. An empty bucket means the
// configured one; the configured prefix applies only then.
func (c *Client) Open(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	if bucket == "" {
		bucket = c.config.Bucket
		objectKey = c.getObjectKey(objectKey)
	}
	if bucket == "" {
		return nil, fmt.Errorf("no bucket given for %s", objectKey)
	}

	obj, err := c.client.GetObject(ctx, bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	// GetObject is lazy; Stat surfaces missing objects and bad credentials
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, fmt.Errorf("failed to get object s3://%s/%s: %w", bucket, objectKey, err)
	}

	logger.Debug("Reading s3://%s/%s (%d bytes)", bucket, objectKey, info.Size)
	return obj, nil
}

// getObjectKey returns the full object key with prefix
func (c *Client) getObjectKey(key string) string {
	if c.config.Prefix == "" {
		return key
	}

	prefix := strings.TrimSuffix(c.config.Prefix, "/")
	key = strings.TrimPrefix(key, "/")

	return path.Join(prefix, key)
}

// ParseURL splits s3://bucket/key into its parts
func ParseURL(raw string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(raw, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
