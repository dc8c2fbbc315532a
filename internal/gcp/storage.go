package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
)

// ErrObjectExists is returned when the object was already written by
// someone else. The existing object is left untouched.
var ErrObjectExists = errors.New("object already exists")

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, content io.Reader) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := io.Copy(writer, content); err != nil {
		closeErr := writer.Close()
		if isPreconditionFailed(err) || isPreconditionFailed(closeErr) {
			slog.Warn("Object already exists, not overwriting.", "gcsObject", objectName)
			return ErrObjectExists
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Warn("Object already exists, not overwriting.", "gcsObject", objectName)
			return ErrObjectExists
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}

// GCSPublisher mirrors a finished output bundle into a bucket.
type GCSPublisher struct {
	client *storage.Client
	bucket string
}

func NewGCSPublisher(ctx context.Context, bucket string) (*GCSPublisher, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewGCSPublisher: bucket cannot be empty")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return &GCSPublisher{client: client, bucket: bucket}, nil
}

// Publish uploads files under prefix and returns their gs:// URIs in input order.
// An object that already exists fails the publish with ErrObjectExists, so
// the returned URIs always name objects this call wrote.
func (p *GCSPublisher) Publish(ctx context.Context, prefix string, files []string) ([]string, error) {
	bucket := p.client.Bucket(p.bucket)
	uris := make([]string, len(files))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for i, localPath := range files {
		objectName := ObjectName(prefix, localPath)
		uris[i] = fmt.Sprintf("gs://%s/%s", p.bucket, objectName)
		eg.Go(func() error {
			f, err := os.Open(localPath)
			if err != nil {
				return fmt.Errorf("could not open local file %s: %w", localPath, err)
			}
			defer f.Close()
			if err := SaveToGCSAtomically(gctx, bucket, objectName, f); err != nil {
				return fmt.Errorf("%s: %w", objectName, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return uris, nil
}

func (p *GCSPublisher) Close() error { return p.client.Close() }

// ObjectName joins a bundle prefix and a local file's base name into an
// object key with forward slashes.
func ObjectName(prefix, localPath string) string {
	return path.Join(filepath.ToSlash(prefix), filepath.Base(localPath))
}
