// Package source fetches conversion inputs over HTTP.
package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"av1conv/internal/pkg/errors"
	"av1conv/internal/pkg/logger"
)

const copyBufferSize = 1 << 20

// Client downloads a source URL to a local file.
type Client interface {
	Fetch(ctx context.Context, url, dst string) (int64, error)
}

type HTTPClient struct {
	client *retryablehttp.Client
}

// NewHTTPClient builds a retrying client. timeout bounds connecting and
// waiting for response headers; the body transfer itself is only bounded
// by ctx.
func NewHTTPClient(timeout time.Duration, retries int, log *logger.Logger) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = nil
	if log != nil {
		rc.Logger = log.WithComponent("source").Logger
	}

	if t, ok := rc.HTTPClient.Transport.(*http.Transport); ok && timeout > 0 {
		t.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
		t.ResponseHeaderTimeout = timeout
		t.TLSHandshakeTimeout = timeout
	}
	return &HTTPClient{client: rc}
}

// Fetch streams url into dst and returns the number of bytes written.
// Non-2xx responses fail with an UPSTREAM_ERROR.
func (c *HTTPClient) Fetch(ctx context.Context, url, dst string) (int64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.ValidationField("source.url", "invalid url").WithField("url", url)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeUpstream, "source.fetch", "source request failed")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return 0, errors.New(errors.CodeUpstream, fmt.Sprintf("source http %d", res.StatusCode)).
			WithField("status", res.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return 0, errors.Wrap(err, "source.fetch", "create destination")
	}
	n, err := io.CopyBuffer(f, res.Body, make([]byte, copyBufferSize))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, errors.WrapWithCode(err, errors.CodeUpstream, "source.fetch", "source transfer failed")
	}
	return n, nil
}
