package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/markdave123-py/pdfmirror/internal/config"
	"github.com/markdave123-py/pdfmirror/internal/core"
	objectclient "github.com/markdave123-py/pdfmirror/internal/core/object-client"
	"github.com/markdave123-py/pdfmirror/internal/core/ocr"
	"github.com/markdave123-py/pdfmirror/internal/core/rasterizer"
	"github.com/markdave123-py/pdfmirror/internal/services"
)

type App struct {
	Store   core.ObjectStore
	Ingest  *services.IngestService
	Storage *services.StorageService
	Text    *services.TextService
	Server  *Server
	Log     *slog.Logger
}

// Deps lets callers replace the rasterizer or the OCR engine; nil fields get
// the production implementations.
type Deps struct {
	Store      core.ObjectStore
	Rasterizer core.Rasterizer
	OCREngine  ocr.Engine
}

func NewApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	return NewAppWith(ctx, cfg, log, Deps{})
}

func NewAppWith(ctx context.Context, cfg *config.Config, log *slog.Logger, deps Deps) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	store := deps.Store
	if store == nil {
		var err error
		if store, err = newStore(appCtx, cfg, log); err != nil {
			return nil, err
		}
	}
	log.Info("object store initialized and ready.", "backend", cfg.StorageBackend)

	materializer, err := objectclient.NewMaterializer(store, filepath.Join(cfg.TempRoot, "objects"))
	if err != nil {
		return nil, err
	}

	raster := deps.Rasterizer
	if raster == nil {
		raster = rasterizer.NewPDFRasterizer(cfg.RasterScale, cfg.JPEGQuality, log.With("component", "rasterizer"))
	}
	engine := deps.OCREngine
	if engine == nil {
		engine = ocr.NewTesseractEngine(cfg.OCRLanguages...)
	}
	extractor := ocr.NewExtractor(engine, cfg.OCRTimeout, log.With("component", "ocr"))

	ingest := services.NewIngestService(store, raster, services.IngestConfig{
		PDFBucket:         cfg.PDFBucket,
		ImagesBucket:      cfg.ImagesBucket,
		ScratchRoot:       filepath.Join(cfg.TempRoot, "uploads"),
		UploadConcurrency: cfg.UploadConcurrency,
	}, log.With("component", "ingest"))
	storage := services.NewStorageService(store, materializer, log.With("component", "storage"))
	text := services.NewTextService(materializer, extractor, cfg.ImagesBucket, log.With("component", "text"))

	server := NewServer(cfg, log, storage, ingest, text)

	return &App{Store: store, Ingest: ingest, Storage: storage, Text: text, Server: server, Log: log}, nil
}

func newStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (core.ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return objectclient.NewMemoryStore(cfg.MinioCreateBuckets), nil
	case config.BackendS3:
		return objectclient.NewS3Client(ctx, cfg, log.With("component", "objectstore"))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
