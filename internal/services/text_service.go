package services

import (
	"context"
	"log/slog"

	"github.com/markdave123-py/pdfmirror/internal/core"
	objectclient "github.com/markdave123-py/pdfmirror/internal/core/object-client"
)

type TextResult struct {
	File string `json:"file"`
	Text string `json:"text"`
}

// TextService runs OCR over page images stored in the images bucket.
type TextService struct {
	materializer *objectclient.Materializer
	extractor    core.TextExtractor
	bucket       string
	log          *slog.Logger
}

func NewTextService(m *objectclient.Materializer, extractor core.TextExtractor, imagesBucket string, log *slog.Logger) *TextService {
	return &TextService{materializer: m, extractor: extractor, bucket: imagesBucket, log: log}
}

// GetText extracts the text of the image object. The local copy is removed
// before returning; File is where it was materialized.
func (s *TextService) GetText(ctx context.Context, objectName string) (*TextResult, error) {
	sess := s.materializer.NewSession()
	defer func() {
		if err := sess.Cleanup(); err != nil {
			s.log.Warn("cleanup failed", "object", objectName, "error", err)
		}
	}()

	s.log.Debug("downloading file", "bucket", s.bucket, "object", objectName)
	p, err := sess.GetObject(ctx, s.bucket, objectName)
	if err != nil {
		return nil, err
	}
	text, err := s.extractor.ExtractText(ctx, p)
	if err != nil {
		return nil, err
	}
	return &TextResult{File: p, Text: text}, nil
}
