package gcs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	apperrors "av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); !apperrors.IsValidation(err) {
		t.Errorf("err = %v", err)
	}
}

func TestMapErr(t *testing.T) {
	if mapErr(nil, "op", "k") != nil {
		t.Error("nil should stay nil")
	}
	if err := mapErr(fmt.Errorf("wrapped: %w", storage.ErrObjectNotExist), "gcs.stat", "k"); !errors.Is(err, ports.ErrObjectNotFound) {
		t.Errorf("not found mapping: %v", err)
	}
	if err := mapErr(errors.New("503 backend error"), "gcs.stat", "k"); !apperrors.IsCode(err, apperrors.CodeUpstream) {
		t.Errorf("upstream mapping: %v", err)
	}
}

func TestProvider(t *testing.T) {
	s, err := New(context.Background(), Config{Bucket: "av1conv-out"}, option.WithoutAuthentication())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Provider() != "gcs" {
		t.Errorf("provider = %s", s.Provider())
	}
}
