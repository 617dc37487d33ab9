package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/pdfmirror/internal/core"
	objectclient "github.com/markdave123-py/pdfmirror/internal/core/object-client"
	"github.com/markdave123-py/pdfmirror/internal/models"
)

// StorageService lists buckets and hands out local copies of objects.
type StorageService struct {
	store        core.ObjectStore
	materializer *objectclient.Materializer
	log          *slog.Logger
}

func NewStorageService(store core.ObjectStore, m *objectclient.Materializer, log *slog.Logger) *StorageService {
	return &StorageService{store: store, materializer: m, log: log}
}

// ListFiles returns every object in bucket. An absent bucket is a bad request.
func (s *StorageService) ListFiles(ctx context.Context, bucket string) ([]models.ObjectInfo, error) {
	exists, err := s.store.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", objectclient.ErrBucketNotFound, bucket)
	}
	s.log.Debug("listing files", "bucket", bucket)
	return s.store.ListObjects(ctx, bucket)
}

// LocalFile is a materialized object. Close removes the local copy.
type LocalFile struct {
	Path        string
	Name        string
	ContentType models.FileType

	session *objectclient.Session
}

func (f *LocalFile) Close() error {
	return f.session.Cleanup()
}

// Fetch materializes bucket/name. The caller must Close the result once the
// file has been sent.
func (s *StorageService) Fetch(ctx context.Context, bucket, name string) (*LocalFile, error) {
	sess := s.materializer.NewSession()
	s.log.Debug("downloading file", "bucket", bucket, "object", name)
	p, err := sess.GetObject(ctx, bucket, name)
	if err != nil {
		_ = sess.Cleanup()
		return nil, err
	}
	return &LocalFile{
		Path:        p,
		Name:        name,
		ContentType: models.FileTypeFromName(name),
		session:     sess,
	}, nil
}
