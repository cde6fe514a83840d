// Package gcs implements ports.StorageProvider on Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

type Config struct {
	Bucket string
	// CredentialsFile is a service account JSON key. Empty uses
	// application default credentials.
	CredentialsFile string
}

type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.ValidationField("GCS_BUCKET", "bucket is required")
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "gcs.new", "create storage client")
	}
	return &Store{client: client, bucket: client.Bucket(cfg.Bucket), name: cfg.Bucket}, nil
}

func (s *Store) Provider() string { return "gcs" }

func (s *Store) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.Validation("object_key is required")
	}

	wc := s.bucket.Object(in.ObjectKey).NewWriter(ctx)
	wc.ContentType = in.ContentType

	n, err := io.Copy(wc, in.Reader)
	if err != nil {
		_ = wc.Close()
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUpstream, "gcs.put", "stream object")
	}
	if err := wc.Close(); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUpstream, "gcs.put", "finalize object")
	}
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (s *Store) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	r, err := s.bucket.Object(objectKey).NewReader(ctx)
	if err != nil {
		return nil, "", 0, mapErr(err, "gcs.get", objectKey)
	}
	return r, r.Attrs.ContentType, r.Attrs.Size, nil
}

func (s *Store) StatObject(ctx context.Context, objectKey string) (ports.ObjectInfo, error) {
	attrs, err := s.bucket.Object(objectKey).Attrs(ctx)
	if err != nil {
		return ports.ObjectInfo{}, mapErr(err, "gcs.stat", objectKey)
	}
	return ports.ObjectInfo{
		ObjectKey:   objectKey,
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		ModTime:     attrs.Updated,
	}, nil
}

func (s *Store) DeleteObject(ctx context.Context, objectKey string) error {
	return mapErr(s.bucket.Object(objectKey).Delete(ctx), "gcs.delete", objectKey)
}

// GetSignedURL returns a V4 signed GET URL. Signing needs service account
// credentials or the IAM signBlob permission.
func (s *Store) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	expires := time.Now().UTC().Add(expiresIn)
	u, err := s.bucket.SignedURL(objectKey, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: expires,
	})
	if err != nil {
		return ports.SignedURLOutput{}, errors.WrapWithCode(err, errors.CodeFailedPrecond, "gcs.sign", "cannot sign url")
	}
	return ports.SignedURLOutput{URL: u, ExpiresAt: expires}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.bucket.Attrs(ctx); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "gcs.ping", "bucket unreachable").
			WithField("bucket", s.name)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func mapErr(err error, op, objectKey string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%s: %w", objectKey, ports.ErrObjectNotFound)
	}
	return errors.WrapWithCode(err, errors.CodeUpstream, op, "gcs request failed").
		WithField("object_key", objectKey)
}
