// Package miniostore implements ports.StorageProvider on a MinIO server.
package miniostore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type Store struct {
	client *minio.Client
	bucket string
}

func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.ValidationField("MINIO_ENDPOINT", "endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.ValidationField("MINIO_BUCKET", "bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "minio.new", "minio connection")
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *Store) Provider() string { return "minio" }

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "minio.bucket", "check bucket")
	}
	if ok {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.WrapWithCode(err, errors.CodeUpstream, "minio.bucket", "create bucket")
	}
	return nil
}

func (s *Store) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.Validation("object_key is required")
	}
	size := in.Size
	if size <= 0 {
		size = -1
	}
	info, err := s.client.PutObject(ctx, s.bucket, in.ObjectKey, in.Reader, size, minio.PutObjectOptions{
		ContentType: in.ContentType,
	})
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUpstream, "minio.put", "upload failed").
			WithField("object_key", in.ObjectKey)
	}
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: info.Size}, nil
}

func (s *Store) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", 0, mapErr(err, "minio.get", objectKey)
	}
	// GetObject is lazy; Stat surfaces a missing key before streaming.
	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, "", 0, mapErr(err, "minio.get", objectKey)
	}
	return obj, st.ContentType, st.Size, nil
}

func (s *Store) StatObject(ctx context.Context, objectKey string) (ports.ObjectInfo, error) {
	st, err := s.client.StatObject(ctx, s.bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		return ports.ObjectInfo{}, mapErr(err, "minio.stat", objectKey)
	}
	return ports.ObjectInfo{
		ObjectKey:   objectKey,
		ContentType: st.ContentType,
		Size:        st.Size,
		ModTime:     st.LastModified,
	}, nil
}

func (s *Store) DeleteObject(ctx context.Context, objectKey string) error {
	if _, err := s.StatObject(ctx, objectKey); err != nil {
		return err
	}
	err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{})
	return mapErr(err, "minio.delete", objectKey)
}

func (s *Store) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, expiresIn, url.Values{})
	if err != nil {
		return ports.SignedURLOutput{}, errors.Wrap(err, "minio.presign", "presign failed")
	}
	return ports.SignedURLOutput{URL: u.String(), ExpiresAt: time.Now().UTC().Add(expiresIn)}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "minio.ping", "minio unreachable")
	}
	return nil
}

func mapErr(err error, op, objectKey string) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", objectKey, ports.ErrObjectNotFound)
	}
	return errors.WrapWithCode(err, errors.CodeUpstream, op, "minio request failed").
		WithField("object_key", objectKey)
}
