package gdrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

// Client implements ports.StorageProvider on Google Drive. Uploads use the
// object key as the Drive file name; every other call addresses the file
// by the Drive file id returned from PutObject.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.Validation("object_key is required")
	}

	file := &drive.File{
		Name:          in.ObjectKey,
		MimeType:      in.ContentType,
		AppProperties: map[string]string{"object_key": in.ObjectKey},
	}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file).SupportsAllDrives(true).Fields("id", "size")
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUpstream, "gdrive.put", "drive upload failed")
	}

	size := created.Size
	if size == 0 {
		size = in.Size
	}
	return ports.PutObjectOutput{ObjectKey: created.Id, Size: size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, "", 0, mapErr(err, "gdrive.get", objectKey)
	}
	return resp.Body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}

func (c *Client) StatObject(ctx context.Context, objectKey string) (ports.ObjectInfo, error) {
	f, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Fields("id", "name", "size", "mimeType", "modifiedTime", "trashed").
		Context(ctx).
		Do()
	if err != nil {
		return ports.ObjectInfo{}, mapErr(err, "gdrive.stat", objectKey)
	}
	if f.Trashed {
		return ports.ObjectInfo{}, fmt.Errorf("%s: %w", objectKey, ports.ErrObjectNotFound)
	}
	info := ports.ObjectInfo{ObjectKey: f.Id, ContentType: f.MimeType, Size: f.Size}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		info.ModTime = t
	}
	return info, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	err := c.srv.Files.Delete(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	return mapErr(err, "gdrive.delete", objectKey)
}

// GetSignedURL is unsupported: Drive downloads need an OAuth bearer token.
func (c *Client) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{}, errors.New(errors.CodeFailedPrecond, "gdrive does not support signed urls")
}

func mapErr(err error, op, objectKey string) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%s: %w", objectKey, ports.ErrObjectNotFound)
	}
	return errors.WrapWithCode(err, errors.CodeUpstream, op, "drive request failed").
		WithField("object_key", objectKey)
}
