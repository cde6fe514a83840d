package middleware

import (
	"net/http"

	"av1conv/internal/httpkit"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/pkg/logger"
)

// ErrorHandlerFunc is a handler that reports failure by returning an error.
type ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request) error

// WrapHandler adapts fn to http.HandlerFunc, rendering returned errors
// with HandleError.
func WrapHandler(log *logger.Logger, fn ErrorHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			HandleError(w, r, log, err)
		}
	}
}

// HandleError logs err and writes the error envelope for its code. Client
// errors are logged at warn, server errors at error with the stack.
func HandleError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	code := errors.GetCode(err)
	status := errors.GetHTTPStatus(err)
	fields := errors.GetFields(err)

	attrs := make([]any, 0, 10+2*len(fields))
	attrs = append(attrs,
		"error", err.Error(),
		"code", string(code),
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
	)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}

	reqLog := log.FromContext(r.Context())
	if status < 500 {
		reqLog.Warn("request error", attrs...)
	} else {
		var e *errors.Error
		if errors.As(err, &e) {
			if st := e.StackTrace(); st != "" {
				attrs = append(attrs, "stack", st)
			}
		}
		reqLog.Error("request failed", attrs...)
	}

	WriteErrorResponse(w, code, publicMessage(err), fields)
}

// WriteErrorResponse writes {"error":{"code","message","details"}} with
// the status that code maps to.
func WriteErrorResponse(w http.ResponseWriter, code errors.Code, message string, details map[string]any) {
	httpkit.WriteErr(w, errors.StatusFor(code), string(code), message, details)
}

// publicMessage keeps wrapped causes and uncoded errors out of client
// responses.
func publicMessage(err error) string {
	var e *errors.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal server error"
}
