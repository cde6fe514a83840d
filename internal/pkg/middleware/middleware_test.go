package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"av1conv/internal/pkg/errors"
	"av1conv/internal/pkg/logger"
	"av1conv/internal/pkg/metrics"
)

func newBufferLogger(level string) (*logger.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logger.New(logger.Config{Level: level, Format: "json", Output: &buf}), &buf
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(logger.RequestIDKey).(string)
	}))

	t.Run("generates", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/status/x", nil))

		id := rec.Header().Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("expected a uuid, got %q", id)
		}
		if seen != id {
			t.Errorf("context id %q != header id %q", seen, id)
		}
	})

	t.Run("preserves", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/status/x", nil)
		req.Header.Set(RequestIDHeader, "client-req-7")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get(RequestIDHeader); got != "client-req-7" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("replaces malformed", func(t *testing.T) {
		for _, bad := range []string{"has space", "line\nbreak", strings.Repeat("a", 129), "<script>"} {
			req := httptest.NewRequest("GET", "/status/x", nil)
			req.Header.Set(RequestIDHeader, bad)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if got := rec.Header().Get(RequestIDHeader); got == bad {
				t.Errorf("malformed id %q was propagated", bad)
			}
		}
	})
}

func TestValidRequestID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"", false},
		{"abc-123_x.y:z", true},
		{uuid.NewString(), true},
		{strings.Repeat("a", 128), true},
		{strings.Repeat("a", 129), false},
		{"a/b", false},
		{"ünï", false},
	}
	for _, tt := range tests {
		if got := validRequestID(tt.id); got != tt.want {
			t.Errorf("validRequestID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestLoggingLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "INFO"},
		{302, "INFO"},
		{404, "WARN"},
		{503, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			log, buf := newBufferLogger("info")
			handler := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/submit", nil))

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("bad log line %q: %v", buf.String(), err)
			}
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
			if entry["path"] != "/submit" || entry["size"] != float64(4) {
				t.Errorf("unexpected entry %v", entry)
			}
		})
	}
}

func TestLoggingQuietPaths(t *testing.T) {
	tests := []struct {
		path   string
		status int
		level  string
	}{
		{"/health", 200, "DEBUG"},
		{"/health", 503, "ERROR"},
		{"/metrics", 200, "DEBUG"},
		{"/jobs", 200, "INFO"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.path, tt.status), func(t *testing.T) {
			log, buf := newBufferLogger("debug")
			handler := Logging(log, "/health", "/metrics")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", tt.path, nil))

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("bad log line %q: %v", buf.String(), err)
			}
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
		})
	}
}

func TestLoggingRoutePattern(t *testing.T) {
	log, buf := newBufferLogger("info")
	r := chi.NewRouter()
	r.Use(Logging(log))
	r.Get("/status/{jobId}", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/status/abc", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("bad log line %q: %v", buf.String(), err)
	}
	if entry["route"] != "/status/{jobId}" || entry["path"] != "/status/abc" {
		t.Errorf("entry = %v", entry)
	}
}

func TestInstrument(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(Instrument(m))
	r.Get("/status/{jobId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/status/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nope", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`av1conv_http_requests_total{method="GET",route="/status/{jobId}",status="404"} 3`,
		`route="unmatched"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %s", want)
		}
	}
}

func TestInstrumentNilMetrics(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	Instrument(nil)(next).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestLoggingKeepsFlusher(t *testing.T) {
	log, buf := newBufferLogger("info")
	handler := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer lost http.Flusher")
		}
		_, _ = w.Write([]byte("data: {}\n\n"))
		f.Flush()
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("response controller flush: %v", err)
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/progress/x/events", nil))
	if !rec.Flushed {
		t.Error("expected recorder to be flushed")
	}
	if !strings.Contains(buf.String(), `"streamed":true`) {
		t.Errorf("log = %s", buf.String())
	}
}

func TestRecovery(t *testing.T) {
	log, buf := newBufferLogger("info")
	handler := Recovery(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("ffmpeg exploded")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "panic recovered") || !strings.Contains(buf.String(), "ffmpeg exploded") {
		t.Errorf("log = %s", buf.String())
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := record(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("hello world"))

	if rw.status != http.StatusAccepted {
		t.Errorf("status = %d", rw.status)
	}
	if rw.size != 11 {
		t.Errorf("size = %d", rw.size)
	}
	if rw.Unwrap() != rec {
		t.Error("Unwrap should return the underlying writer")
	}

	if record(rw) != rw {
		t.Error("record should reuse an existing recorder")
	}

	implicit := record(httptest.NewRecorder())
	_, _ = implicit.Write([]byte("x"))
	if implicit.status != http.StatusOK {
		t.Errorf("implicit status = %d", implicit.status)
	}
}

func TestWrapHandler(t *testing.T) {
	log, _ := newBufferLogger("info")

	t.Run("success", func(t *testing.T) {
		h := WrapHandler(log, func(w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusOK)
			return nil
		})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("coded error", func(t *testing.T) {
		h := WrapHandler(log, func(w http.ResponseWriter, r *http.Request) error {
			return errors.New(errors.CodeNotFound, "Unknown job_id").WithField("job_id", "abc")
		})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/status/abc", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}
		var body struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Error.Code != "NOT_FOUND" || body.Error.Message != "Unknown job_id" || body.Error.Details["job_id"] != "abc" {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("plain error is hidden", func(t *testing.T) {
		h := WrapHandler(log, func(w http.ResponseWriter, r *http.Request) error {
			return fmt.Errorf("dial tcp 10.0.0.1:5432: refused")
		})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "10.0.0.1") {
			t.Errorf("internal detail leaked: %s", rec.Body.String())
		}
	})
}

func TestWriteErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, errors.CodeValidation, `Missing "url"`, map[string]any{"field": "source.url"})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %s", ct)
	}
	if !json.Valid(rec.Body.Bytes()) {
		t.Errorf("invalid JSON: %s", rec.Body.String())
	}
}

func TestGenerateRequestID(t *testing.T) {
	a, b := generateRequestID(), generateRequestID()
	if a == b || len(a) != 36 {
		t.Errorf("ids %q %q", a, b)
	}
}
