package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/pdfmirror/internal/core"
	"github.com/markdave123-py/pdfmirror/internal/models"
)

// copyChunkSize bounds how much of an upload is held in memory at once.
const copyChunkSize = 32 << 10

var ErrMissingFilename = fmt.Errorf("%w: filename is missing", core.ErrBadRequest)

// IngestConfig tunes the ingestion workflow.
//
// PDFBucket:         bucket receiving the original documents.
// ImagesBucket:      bucket receiving page images under "<document>/NN.jpg".
// ScratchRoot:       parent of the per-upload scratch directories.
// UploadConcurrency: page images uploaded in parallel.
type IngestConfig struct {
	PDFBucket         string
	ImagesBucket      string
	ScratchRoot       string
	UploadConcurrency int
}

// IngestResult describes a stored document.
type IngestResult struct {
	Name  string   `json:"name"`
	Pages []string `json:"pages"`
}

// IngestService stores an uploaded PDF and its rasterized pages.
type IngestService struct {
	store  core.ObjectStore
	raster core.Rasterizer
	cfg    IngestConfig
	log    *slog.Logger
}

func NewIngestService(store core.ObjectStore, raster core.Rasterizer, cfg IngestConfig, log *slog.Logger) *IngestService {
	if cfg.UploadConcurrency < 1 {
		cfg.UploadConcurrency = 1
	}
	return &IngestService{store: store, raster: raster, cfg: cfg, log: log}
}

// SafeFilename strips directory components from a client-supplied name.
func SafeFilename(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return "", ErrMissingFilename
	}
	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", ErrMissingFilename
	}
	return base, nil
}

// Ingest stores body as <PDFBucket>/<name> and each rendered page as
// <ImagesBucket>/<name>/NN.jpg. A name that already exists in the PDF bucket
// is a conflict and nothing is written.
//
// Errors other than bad request and conflict carry a stack trace.
func (s *IngestService) Ingest(ctx context.Context, filename string, body io.Reader) (*IngestResult, error) {
	name, err := SafeFilename(filename)
	if err != nil {
		return nil, err
	}
	logCtx := s.log.With("document", name)

	exists, err := s.store.ObjectExists(ctx, s.cfg.PDFBucket, name)
	if err != nil {
		return nil, errors.Wrap(err, "check existing document")
	}
	if exists {
		return nil, fmt.Errorf("%w: file %q already exists", core.ErrConflict, name)
	}

	scratch := filepath.Join(s.cfg.ScratchRoot, uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, errors.Wrap(err, "create scratch directory")
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logCtx.Warn("failed to remove scratch directory", "path", scratch, "error", err)
		}
	}()

	localPDF := filepath.Join(scratch, "file.pdf")
	logCtx.Debug("saving upload", "path", localPDF)
	if err := saveUpload(localPDF, body); err != nil {
		return nil, errors.Wrap(err, "save upload")
	}

	logCtx.Debug("converting pdf to images", "path", localPDF)
	imgPaths, err := s.raster.Rasterize(ctx, localPDF)
	if err != nil {
		return nil, errors.Wrap(err, "rasterize pdf")
	}

	logCtx.Debug("uploading files", "pages", len(imgPaths))
	if err := s.store.PutObject(ctx, s.cfg.PDFBucket, name, localPDF, models.FileTypePDF); err != nil {
		return nil, errors.Wrap(err, "upload pdf")
	}

	pages := make([]string, len(imgPaths))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.UploadConcurrency)
	for i, p := range imgPaths {
		object := models.PageObjectName(name, filepath.Base(p))
		pages[i] = object
		eg.Go(func() error {
			if err := s.store.PutObject(gctx, s.cfg.ImagesBucket, object, p, models.FileTypeJPEG); err != nil {
				return errors.Wrapf(err, "upload page %s", object)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		// Drop the stored original so the name is free for a retry.
		if derr := s.store.DeleteObject(context.WithoutCancel(ctx), s.cfg.PDFBucket, name); derr != nil {
			logCtx.Error("page upload failed and the stored pdf could not be removed; the document is partially ingested",
				"bucket", s.cfg.PDFBucket, "error", derr)
			return nil, err
		}
		logCtx.Warn("page upload failed; removed the stored pdf", "bucket", s.cfg.PDFBucket, "error", err)
		return nil, err
	}

	logCtx.Info("document ingested", "pages", len(pages))
	return &IngestResult{Name: name, Pages: pages}, nil
}

func saveUpload(dst string, body io.Reader) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	// Hide ReaderFrom so the copy goes through buf.
	buf := make([]byte, copyChunkSize)
	if _, err := io.CopyBuffer(struct{ io.Writer }{f}, body, buf); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
