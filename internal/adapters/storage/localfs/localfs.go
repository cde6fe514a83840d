package localfs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"av1conv/internal/media"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

// LocalFS implements ports.StorageProvider on the local filesystem.
// Objects live under root at their slash-separated key.
type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

// path resolves objectKey under root, rejecting keys that escape it.
func (l *LocalFS) path(objectKey string) (string, error) {
	if objectKey == "" {
		return "", errors.Validation("object_key is required")
	}
	clean := filepath.Clean(filepath.FromSlash(objectKey))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.ValidationField("object_key", "object key escapes storage root").
			WithField("object_key", objectKey)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	dst, err := l.path(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, "localfs.put", "create directory")
	}

	// Write to a sibling temp file so readers never see a partial output.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, "localfs.put", "create temp file")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, in.Reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, "localfs.put", "write object")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, "localfs.put", "rename object")
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	p, err := l.path(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, "", 0, mapErr(err, objectKey)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, "", 0, errors.Wrap(err, "localfs.get", "stat object")
	}

	return f, media.FormatFromFilename(p).MIME(), st.Size(), nil
}

func (l *LocalFS) StatObject(ctx context.Context, objectKey string) (ports.ObjectInfo, error) {
	p, err := l.path(objectKey)
	if err != nil {
		return ports.ObjectInfo{}, err
	}
	st, err := os.Stat(p)
	if err != nil {
		return ports.ObjectInfo{}, mapErr(err, objectKey)
	}
	if st.IsDir() {
		return ports.ObjectInfo{}, fmt.Errorf("%s: %w", objectKey, ports.ErrObjectNotFound)
	}
	return ports.ObjectInfo{
		ObjectKey:   objectKey,
		ContentType: media.FormatFromFilename(p).MIME(),
		Size:        st.Size(),
		ModTime:     st.ModTime(),
	}, nil
}

// DeleteObject removes the object and then its parent directory if the
// directory is left empty, so jobs/<id>/ disappears with its output.
func (l *LocalFS) DeleteObject(ctx context.Context, objectKey string) error {
	p, err := l.path(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return mapErr(err, objectKey)
	}

	dir := filepath.Dir(p)
	if dir == filepath.Clean(l.root) {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		_ = os.Remove(dir)
	}
	return nil
}

func (l *LocalFS) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{}, errors.New(errors.CodeFailedPrecond, "localfs does not support signed urls")
}

func mapErr(err error, objectKey string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", objectKey, ports.ErrObjectNotFound)
	}
	return errors.Wrap(err, "localfs", "access object").WithField("object_key", objectKey)
}
