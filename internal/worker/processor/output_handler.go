package processor

import (
	"context"
	"os"
	"path"

	"av1conv/internal/media"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/ports"
)

// OutputName is the delivered file name for format.
func OutputName(format media.Format) string {
	return "output" + format.Extension()
}

// ObjectKey is the storage key of a job's output.
func ObjectKey(jobID string, format media.Format) string {
	return path.Join("jobs", jobID, OutputName(format))
}

type OutputHandler struct {
	sp ports.StorageProvider
}

func NewOutputHandler(sp ports.StorageProvider) *OutputHandler {
	return &OutputHandler{sp: sp}
}

func (oh *OutputHandler) Provider() string { return oh.sp.Provider() }

// Upload stores the encoded file. The returned key is what later reads
// must use (a Drive file id for gdrive).
func (oh *OutputHandler) Upload(ctx context.Context, jobID, localPath string, format media.Format) (ports.PutObjectOutput, error) {
	st, err := os.Stat(localPath)
	if err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, "processor.upload", "encoded file not found")
	}
	if st.Size() == 0 {
		return ports.PutObjectOutput{}, errors.New(errors.CodeInternal, "encoded file is empty")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, "processor.upload", "failed to open encoded file")
	}
	defer f.Close()

	return oh.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   ObjectKey(jobID, format),
		ContentType: format.MIME(),
		Reader:      f,
		Size:        st.Size(),
	})
}
