package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"av1conv/internal/pkg/errors"
	"av1conv/internal/pkg/logger"
)

func fastClient(retries int) *HTTPClient {
	c := NewHTTPClient(5*time.Second, retries, logger.Nop())
	c.client.RetryWaitMin = time.Millisecond
	c.client.RetryWaitMax = 5 * time.Millisecond
	return c
}

func TestFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fake-mov-bytes"))
	}))
	defer ts.Close()

	dst := filepath.Join(t.TempDir(), "input")
	n, err := fastClient(0).Fetch(context.Background(), ts.URL+"/in.mov", dst)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(dst)
	if n != 14 || string(data) != "fake-mov-bytes" {
		t.Errorf("n=%d data=%q", n, data)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	_, err := fastClient(3).Fetch(context.Background(), ts.URL, filepath.Join(t.TempDir(), "input"))
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d", calls.Load())
	}
}

func TestFetchNotFound(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := fastClient(2).Fetch(context.Background(), ts.URL, filepath.Join(t.TempDir(), "input"))
	if !errors.IsCode(err, errors.CodeUpstream) {
		t.Fatalf("err = %v", err)
	}
	if errors.GetFields(err)["status"] != 404 {
		t.Errorf("fields = %v", errors.GetFields(err))
	}
}

func TestFetchCanceled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := fastClient(0).Fetch(ctx, ts.URL, filepath.Join(t.TempDir(), "input")); err == nil {
		t.Error("expected error")
	}
}
