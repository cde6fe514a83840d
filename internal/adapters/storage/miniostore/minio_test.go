package miniostore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	apperrors "av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{Bucket: "b"}); !apperrors.IsValidation(err) {
		t.Errorf("missing endpoint: %v", err)
	}
	if _, err := New(Config{Endpoint: "localhost:9000"}); !apperrors.IsValidation(err) {
		t.Errorf("missing bucket: %v", err)
	}
}

func TestSignedURL(t *testing.T) {
	s, err := New(Config{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "outputs",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := s.GetSignedURL(context.Background(), "jobs/j1/output.mp4", 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.URL, "http://localhost:9000/outputs/jobs/j1/output.mp4?") {
		t.Errorf("url = %s", out.URL)
	}
	if !strings.Contains(out.URL, "X-Amz-Expires=300") {
		t.Errorf("url = %s", out.URL)
	}
}

func TestStatMissing(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	u, _ := url.Parse(ts.URL)
	s, err := New(Config{Endpoint: u.Host, AccessKey: "a", SecretKey: "b", Bucket: "outputs", Region: "us-east-1"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.StatObject(context.Background(), "jobs/none/output.mp4"); !errors.Is(err, ports.ErrObjectNotFound) {
		t.Errorf("err = %v", err)
	}
}
