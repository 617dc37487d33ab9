package core

import (
	"context"

	"github.com/markdave123-py/pdfmirror/internal/models"
)

// ObjectStore defines interactions with S3 or any S3-compatible store.
// It's abstract so MinIO, AWS or the in-memory store can sit behind it.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	EnsureBucket(ctx context.Context, bucket string) error
	ObjectExists(ctx context.Context, bucket, name string) (bool, error)
	ListObjects(ctx context.Context, bucket string) ([]models.ObjectInfo, error)
	PutObject(ctx context.Context, bucket, name, localPath string, contentType models.FileType) error
	Download(ctx context.Context, bucket, name, dst string) error
	// DeleteObject removes bucket/name. Deleting an absent object is not an error.
	DeleteObject(ctx context.Context, bucket, name string) error
}

// Rasterizer renders every page of a local PDF to an image file and returns
// the image paths in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string) ([]string, error)
}

// TextExtractor returns the text found in a local image.
type TextExtractor interface {
	ExtractText(ctx context.Context, imagePath string) (string, error)
}
