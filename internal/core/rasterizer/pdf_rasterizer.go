package rasterizer

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/gen2brain/jpegli"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/markdave123-py/pdfmirror/internal/core"
)

var _ core.Rasterizer = (*PDFRasterizer)(nil)

// baseDPI is the PDF user-space resolution; a scale of 1 renders at 72 DPI.
const baseDPI = 72.0

// ImagesDir is the subdirectory, next to the source PDF, that receives the
// page images.
const ImagesDir = "images"

// PDFRasterizer renders PDF pages with MuPDF and encodes them as 4:4:4 JPEG,
// chroma is never subsampled.
type PDFRasterizer struct {
	scale   float64
	quality int
	log     *slog.Logger
}

func NewPDFRasterizer(scale float64, quality int, log *slog.Logger) *PDFRasterizer {
	return &PDFRasterizer{scale: scale, quality: quality, log: log}
}

// PageFileName is the image file name of the zero-based page i.
func PageFileName(i int) string {
	return fmt.Sprintf("%02d.jpg", i)
}

// Rasterize writes one JPEG per page into <dir of pdfPath>/images as 00.jpg,
// 01.jpg, ... and returns the paths in page order. Either every page is
// written or none are left behind.
func (r *PDFRasterizer) Rasterize(ctx context.Context, pdfPath string) (paths []string, err error) {
	pdfPath, err = filepath.Abs(pdfPath)
	if err != nil {
		return nil, err
	}

	pageCount, err := api.PageCountFile(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("parse pdf %s: %w", filepath.Base(pdfPath), err)
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", filepath.Base(pdfPath), err)
	}
	defer doc.Close()

	if n := doc.NumPage(); n != pageCount {
		return nil, fmt.Errorf("page count mismatch for %s: parser saw %d, renderer saw %d", filepath.Base(pdfPath), pageCount, n)
	}

	outDir := filepath.Join(filepath.Dir(pdfPath), ImagesDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", outDir, err)
	}

	defer func() {
		if err != nil {
			for _, p := range paths {
				_ = os.Remove(p)
			}
			_ = os.Remove(outDir)
			paths = nil
		}
	}()

	dpi := baseDPI * r.scale
	for i := 0; i < pageCount; i++ {
		if err = ctx.Err(); err != nil {
			return paths, err
		}
		img, rerr := doc.ImageDPI(i, dpi)
		if rerr != nil {
			err = fmt.Errorf("render page %d: %w", i, rerr)
			return paths, err
		}
		p := filepath.Join(outDir, PageFileName(i))
		paths = append(paths, p)
		if err = r.writeJPEG(p, img); err != nil {
			return paths, err
		}
	}

	r.log.Debug("rasterized pdf", "pdf", pdfPath, "pages", pageCount, "dpi", dpi)
	return paths, nil
}

func (r *PDFRasterizer) writeJPEG(p string, img image.Image) error {
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("create %s: %w", p, err)
	}
	opts := &jpegli.EncodingOptions{
		Quality:           r.quality,
		ChromaSubsampling: image.YCbCrSubsampleRatio444,
	}
	if err := jpegli.Encode(f, img, opts); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", p, err)
	}
	return f.Close()
}
