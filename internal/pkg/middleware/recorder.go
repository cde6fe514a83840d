package middleware

import "net/http"

// statusRecorder remembers the status and body size written through it.
// Flush is forwarded for SSE; Unwrap lets http.ResponseController reach
// the underlying writer.
type statusRecorder struct {
	http.ResponseWriter
	status   int
	size     int64
	written  bool
	streamed bool
}

// record returns w as a *statusRecorder, reusing an outer one.
func record(w http.ResponseWriter) *statusRecorder {
	if sr, ok := w.(*statusRecorder); ok {
		return sr
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.written {
		return
	}
	sr.status, sr.written = code, true
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.WriteHeader(http.StatusOK)
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.size += int64(n)
	return n, err
}

func (sr *statusRecorder) Flush() {
	sr.streamed = true
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}
