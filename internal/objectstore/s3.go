package objectstore

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Publisher mirrors output bundles into an S3-compatible bucket (MinIO
// in local setups).
type S3Publisher struct {
	client     *minio.Client
	bucketName string
	region     string

	mu    sync.Mutex
	ready bool
}

func NewS3Publisher(cfg S3Config) (*S3Publisher, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Publisher{client: client, bucketName: bucket, region: region}, nil
}

// ensureBucket checks for the bucket until a check succeeds; failures are
// not remembered, so a later publish tries again.
func (s *S3Publisher) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

// Publish uploads each file under prefix and returns s3:// URIs in input order.
func (s *S3Publisher) Publish(ctx context.Context, prefix string, files []string) ([]string, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, fmt.Errorf("prefix is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	uris := make([]string, 0, len(files))
	for _, localPath := range files {
		key := objectKey(prefix, filepath.Base(localPath))
		if _, err := s.client.FPutObject(ctx, s.bucketName, key, localPath, minio.PutObjectOptions{
			ContentType: contentType(localPath),
		}); err != nil {
			return nil, fmt.Errorf("put %s: %w", key, err)
		}
		uris = append(uris, fmt.Sprintf("s3://%s/%s", s.bucketName, key))
	}
	return uris, nil
}

func (s *S3Publisher) Close() error { return nil }

func objectKey(prefix, name string) string {
	normalized := strings.TrimLeft(strings.TrimSpace(name), "/")
	return strings.TrimSuffix(strings.TrimSpace(prefix), "/") + "/" + normalized
}

func contentType(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".json":
		return "application/json"
	}
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

