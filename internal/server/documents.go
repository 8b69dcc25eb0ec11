package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/ratecon-intake/constants"
	"github.com/joseph-ayodele/ratecon-intake/internal/async"
	"github.com/joseph-ayodele/ratecon-intake/internal/common"
)

// uploadHandler queues a document for the user's worker and answers 202 with the job ID.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.accounts.IsAdmin(id) && !s.throttle.Allow(id) {
		throttleHits.Inc()
		w.Header().Set("Retry-After", "1")
		s.writeError(w, r, common.NewAppError("THROTTLED", "slow down", common.ErrThrottled))
		return
	}
	if _, err := s.accounts.Authorize(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	data, name, err := s.readDocument(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	job := async.Job{
		ID:          uuid.New(),
		UserID:      id,
		FileRef:     s.uploads.Put(data),
		FileName:    name,
		SubmittedAt: time.Now().UTC(),
		TraceID:     common.RequestIDFromContext(r.Context()),
	}
	s.jobs.Track(job)
	ahead, err := s.queue.Enqueue(r.Context(), job)
	if err != nil {
		s.uploads.Delete(job.FileRef)
		s.jobs.Fail(job.ID, err.Error())
		s.writeError(w, r, err)
		return
	}
	jobsQueued.Inc()
	s.logger.Info("document.queued", "job_id", job.ID, "user_id", id, "file", name, "bytes", len(data), "ahead", ahead)
	s.writeJSON(w, http.StatusAccepted, UploadResponse{JobID: job.ID.String(), State: constants.DocStateQueued, Position: ahead})
}

func (s *Server) jobHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, common.NewAppError("INVALID_JOB", "job id must be a UUID", common.ErrInvalidInput))
		return
	}
	v, err := s.jobs.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

// extractHandler runs the pipeline synchronously on one document. Quota does not apply.
func (s *Server) extractHandler(w http.ResponseWriter, r *http.Request) {
	data, _, err := s.readDocument(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tmpl := r.FormValue("template")

	f, err := os.CreateTemp(s.cfg.TempDir, "rc-*.pdf")
	if err != nil {
		s.writeError(w, r, common.WrapError(err, "create temp file"))
		return
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()
	_, werr := f.Write(data)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		s.writeError(w, r, common.WrapError(werr, "save document"))
		return
	}

	out, err := s.processor.Process(r.Context(), path, tmpl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ExtractResponse{
		Record:    out.Record,
		Text:      out.Text,
		Method:    out.Method,
		Pages:     out.Pages,
		Layers:    out.Layers,
		Warnings:  out.Warnings,
		ElapsedMS: out.Duration.Milliseconds(),
	})
}

// readDocument accepts a multipart "file" field or a raw application/pdf body.
func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var (
		src  io.Reader
		name = "document.pdf"
	)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
			return nil, "", uploadError(err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", common.NewAppError("MISSING_FILE", "multipart field 'file' is required", common.ErrInvalidInput)
		}
		defer func() { _ = file.Close() }()
		src = file
		if header.Filename != "" {
			name = filepath.Base(header.Filename)
		}
	case constants.PDFMimeType:
		src = r.Body
		if n := r.URL.Query().Get("filename"); n != "" {
			name = filepath.Base(n)
		}
	default:
		return nil, "", common.NewAppError("UNSUPPORTED_MEDIA", "send a PDF as multipart 'file' or application/pdf", common.ErrInvalidInput)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, "", uploadError(err)
	}
	uploadSizeBytes.Observe(float64(len(data)))
	if !constants.LooksLikePDF(data) {
		return nil, "", common.NewAppError("INVALID_DOCUMENT", "file is not a PDF", common.ErrInvalidInput)
	}
	return data, name, nil
}

func uploadError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return common.NewAppError("TOO_LARGE", "document exceeds upload limit", common.ErrInvalidInput)
	}
	return common.NewAppError("BAD_UPLOAD", err.Error(), common.ErrInvalidInput)
}
