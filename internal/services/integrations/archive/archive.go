// Package archive uploads report files to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config points at a bucket. An empty Endpoint disables archiving.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Prefix is prepended to every object key.
	Prefix string
}

// Enabled reports whether uploads can be attempted.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.Bucket) != ""
}

// Archiver stores one object.
type Archiver interface {
	Enabled() bool
	Put(ctx context.Context, key, contentType string, body []byte) error
}

// Disabled drops uploads.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Put(_ context.Context, key, _ string, _ []byte) error {
	log.Printf("archive disabled: skip %s", key)
	return nil
}

type objectPutter interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, reader *bytes.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type minioPutter struct {
	client *minio.Client
}

func (m minioPutter) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return m.client.BucketExists(ctx, bucket)
}

func (m minioPutter) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return m.client.MakeBucket(ctx, bucket, opts)
}

func (m minioPutter) PutObject(ctx context.Context, bucket, key string, reader *bytes.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return m.client.PutObject(ctx, bucket, key, reader, size, opts)
}

// Store writes objects with minio-go.
type Store struct {
	cfg     Config
	objects objectPutter
}

// New returns a Store, or Disabled when cfg has no endpoint.
func New(cfg Config) (Archiver, error) {
	if !cfg.Enabled() {
		return Disabled{}, nil
	}
	client, err := minio.New(strings.TrimSpace(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return &Store{cfg: cfg, objects: minioPutter{client: client}}, nil
}

func (s *Store) Enabled() bool { return true }

// Put uploads body under the configured prefix, creating the bucket on first use.
func (s *Store) Put(ctx context.Context, key, contentType string, body []byte) error {
	exists, err := s.objects.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.cfg.Bucket, err)
	}
	if !exists {
		if err := s.objects.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
		}
	}
	objectKey := ObjectKey(s.cfg.Prefix, key)
	_, err = s.objects.PutObject(ctx, s.cfg.Bucket, objectKey, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}
	return nil
}

// ObjectKey joins prefix and key with a single slash.
func ObjectKey(prefix, key string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	key = strings.TrimLeft(key, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
