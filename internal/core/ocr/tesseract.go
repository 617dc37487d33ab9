package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Engine runs OCR over one local image file.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// TesseractEngine implements Engine with the gosseract client. A fresh client
// is used per call; gosseract clients are not safe for concurrent use.
type TesseractEngine struct {
	languages []string
}

func NewTesseractEngine(languages ...string) *TesseractEngine {
	return &TesseractEngine{languages: languages}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Recognize(ctx context.Context, imagePath string) (string, error) {
	c := gosseract.NewClient()
	defer c.Close()

	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
