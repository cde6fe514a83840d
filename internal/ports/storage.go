package ports

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned (possibly wrapped) when an object key does
// not exist in the provider.
var ErrObjectNotFound = errors.New("object not found")

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	// Size is -1 when unknown.
	Size int64
}

type PutObjectOutput struct {
	// For localfs, s3, gcs and minio this is the input key.
	// For gdrive it is the Drive file id, needed to read the object back.
	ObjectKey string
	Size      int64
}

type ObjectInfo struct {
	ObjectKey   string
	ContentType string
	Size        int64
	ModTime     time.Time
}

type SignedURLOutput struct {
	URL       string
	ExpiresAt time.Time
}

// StorageProvider stores encoded outputs (localfs, gdrive, s3, gcs, minio).
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	StatObject(ctx context.Context, objectKey string) (ObjectInfo, error)
	DeleteObject(ctx context.Context, objectKey string) error

	// GetSignedURL returns a time-limited direct download URL. Providers
	// that cannot sign return an error with code FAILED_PRECONDITION.
	GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (SignedURLOutput, error)
}
