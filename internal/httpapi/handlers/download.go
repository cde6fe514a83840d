package handlers

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"av1conv/internal/media"
	"av1conv/internal/models"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

// Download delivers the output of a completed job, either streamed or as
// a redirect to a signed URL.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	log := h.log.FromContext(ctx)
	jobID := chi.URLParam(r, "jobId")

	st, err := h.states.Get(ctx, jobID)
	if err != nil && !errors.Is(err, ports.ErrStateNotFound) {
		return errors.Wrap(err, "handler.download", "failed to load job")
	}
	if err != nil || st.Status != models.StatusCompleted {
		return errors.New(errors.CodeNotFound, "Not ready").WithField("job_id", jobID)
	}
	if st.FilePath == "" || st.Deleted {
		return fileMissing(jobID)
	}

	name := st.FileName
	if name == "" {
		name = "output" + media.DefaultFormat.Extension()
	}

	if h.downloadRedirect {
		signed, err := h.sp.GetSignedURL(ctx, st.FilePath, h.signedURLTTL)
		switch {
		case err == nil:
			h.markDownloaded(ctx, jobID)
			http.Redirect(w, r, signed.URL, http.StatusFound)
			return nil
		case errors.Is(err, ports.ErrObjectNotFound):
			return fileMissing(jobID)
		case !errors.IsCode(err, errors.CodeFailedPrecond):
			log.Warn("signed url failed, streaming instead", "job_id", jobID, "error", err.Error())
		}
	}

	rc, _, size, err := h.sp.GetObject(ctx, st.FilePath)
	if errors.Is(err, ports.ErrObjectNotFound) {
		return fileMissing(jobID)
	}
	if err != nil {
		return errors.Wrap(err, "handler.download", "failed to open output")
	}
	defer rc.Close()

	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	hdr := w.Header()
	hdr.Set("Content-Type", media.FormatFromFilename(name).MIME())
	hdr.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if size > 0 {
		hdr.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.CopyBuffer(w, rc, make([]byte, 1<<20))
	if err != nil {
		log.Warn("download interrupted", "job_id", jobID, "bytes", n, "error", err.Error())
		return nil
	}

	h.markDownloaded(ctx, jobID)
	log.Info("output delivered", "job_id", jobID, "bytes", n)
	return nil
}

func (h *Handler) markDownloaded(ctx context.Context, jobID string) {
	ctx = context.WithoutCancel(ctx)
	st, err := h.states.Get(ctx, jobID)
	if err == nil {
		st.MarkDownloaded(h.now())
		err = h.states.Put(ctx, st)
	}
	if err != nil {
		h.log.FromContext(ctx).Warn("failed to mark job downloaded", "job_id", jobID, "error", err.Error())
		return
	}
	h.metrics.Download()
}

func fileMissing(jobID string) error {
	return errors.New(errors.CodeNotFound, "File missing").WithField("job_id", jobID)
}
