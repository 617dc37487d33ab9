package objectclient

import (
	"context"
	"fmt"

	"github.com/markdave123-py/pdfmirror/internal/core"
)

var (
	// ErrBucketMissing is returned by EnsureBucket when the bucket is absent
	// and bucket creation is disabled.
	ErrBucketMissing = fmt.Errorf("%w: bucket missing and creation disabled", core.ErrNotFound)

	ErrBucketNotFound    = fmt.Errorf("%w: bucket does not exist", core.ErrBadRequest)
	ErrObjectNotFound    = fmt.Errorf("%w: object does not exist", core.ErrNotFound)
	ErrInvalidObjectName = fmt.Errorf("%w: invalid object name", core.ErrBadRequest)
)

// Downloader fetches a single object into a local file.
type Downloader interface {
	Download(ctx context.Context, bucket, name, dst string) error
}
