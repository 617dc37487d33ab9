package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	appMiddleware "github.com/markdave123-py/pdfmirror/internal/api/middlewares"
	"github.com/markdave123-py/pdfmirror/internal/core"
	"github.com/markdave123-py/pdfmirror/internal/models"
	"github.com/markdave123-py/pdfmirror/internal/services"
)

// Form fields accepted for the uploaded PDF, in order of preference.
var uploadFields = []string{"in_file", "file"}

type FileStore interface {
	ListFiles(ctx context.Context, bucket string) ([]models.ObjectInfo, error)
	Fetch(ctx context.Context, bucket, name string) (*services.LocalFile, error)
}

type Ingester interface {
	Ingest(ctx context.Context, filename string, body io.Reader) (*services.IngestResult, error)
}

type StorageHandler struct {
	files          FileStore
	ingestor       Ingester
	maxUploadBytes int64
}

func NewStorageHandler(files FileStore, ing Ingester, maxUploadBytes int64) *StorageHandler {
	return &StorageHandler{files: files, ingestor: ing, maxUploadBytes: maxUploadBytes}
}

// ListFiles handles GET /storage?bucket_name=.
func (h *StorageHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	bucket := r.URL.Query().Get("bucket_name")
	if bucket == "" {
		writeBadRequest(w, "bucket_name is required")
		return
	}

	files, err := h.files.ListFiles(r.Context(), bucket)
	if err != nil {
		if core.KindOf(err) == core.KindBadRequest {
			writeBadRequest(w, "Bucket '"+bucket+"' does not exist.")
			return
		}
		appMiddleware.LoggerFrom(r.Context()).Error("list files failed", "bucket", bucket, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// GetFile handles GET /storage/file. The local copy is removed once the body
// has been written.
func (h *StorageHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bucket, object := q.Get("bucket_name"), q.Get("object_name")
	if bucket == "" || object == "" {
		writeBadRequest(w, "bucket_name and object_name are required")
		return
	}
	log := appMiddleware.LoggerFrom(r.Context())

	file, err := h.files.Fetch(r.Context(), bucket, object)
	if err != nil {
		log.Warn("fetch failed", "bucket", bucket, "object", object, "error", err)
		writeError(w, err)
		return
	}
	defer func() {
		log.Debug("deleting local copy", "path", file.Path)
		if err := file.Close(); err != nil {
			log.Warn("cleanup failed", "path", file.Path, "error", err)
		}
	}()

	f, err := os.Open(file.Path)
	if err != nil {
		writeInternal(w, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType.String())
	http.ServeContent(w, r, "", info.ModTime(), f)
}

// UploadFile handles POST /storage/file. The upload is streamed from the
// multipart body; it is never buffered whole.
func (h *StorageHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	log := appMiddleware.LoggerFrom(r.Context())
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	part, err := uploadPart(r)
	if err != nil {
		if tooLarge(err) {
			writeTooLarge(w, h.maxUploadBytes)
			return
		}
		writeBadRequest(w, err.Error())
		return
	}
	defer part.Close()

	res, err := h.ingestor.Ingest(r.Context(), part.FileName(), part)
	if err != nil {
		if tooLarge(err) {
			log.Warn("upload exceeds size limit", "filename", part.FileName(), "limit", h.maxUploadBytes)
			writeTooLarge(w, h.maxUploadBytes)
			return
		}
		// Anything but a rejected name or a duplicate is a server error here.
		switch core.KindOf(err) {
		case core.KindConflict:
			writeConflict(w, err.Error())
		case core.KindBadRequest:
			writeBadRequest(w, err.Error())
		default:
			log.Error("ingest failed", "filename", part.FileName(), "error", err)
			writeInternal(w, err)
		}
		return
	}

	log.Info("file uploaded", "document", res.Name, "pages", len(res.Pages))
	writeJSON(w, http.StatusCreated, map[string]any{"message": "File uploaded successfully"})
}

func uploadPart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errors.New("expected a multipart/form-data body")
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errors.New("no file in request; send it as form field \"in_file\"")
		}
		if err != nil {
			return nil, err
		}
		for _, field := range uploadFields {
			if part.FormName() == field {
				return part, nil
			}
		}
		part.Close()
	}
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
