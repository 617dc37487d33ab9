package objectclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/markdave123-py/pdfmirror/internal/core"
	"github.com/markdave123-py/pdfmirror/internal/models"
)

var _ core.ObjectStore = (*MemoryStore)(nil)

type memoryObject struct {
	data        []byte
	contentType models.FileType
	modified    time.Time
}

// MemoryStore keeps buckets in process memory. It backs STORAGE_BACKEND=memory
// and the tests.
type MemoryStore struct {
	mu            sync.RWMutex
	buckets       map[string]map[string]memoryObject
	createBuckets bool
	now           func() time.Time
}

func NewMemoryStore(createBuckets bool) *MemoryStore {
	return &MemoryStore{
		buckets:       make(map[string]map[string]memoryObject),
		createBuckets: createBuckets,
		now:           time.Now,
	}
}

// CreateBucket adds an empty bucket; it is a no-op if the bucket exists.
func (m *MemoryStore) CreateBucket(bucket string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string]memoryObject)
	}
}

func (m *MemoryStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[bucket]
	return ok, nil
}

func (m *MemoryStore) EnsureBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; ok {
		return nil
	}
	if !m.createBuckets {
		return fmt.Errorf("%w: %s", ErrBucketMissing, bucket)
	}
	m.buckets[bucket] = make(map[string]memoryObject)
	return nil
}

func (m *MemoryStore) ObjectExists(ctx context.Context, bucket, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[bucket][name]
	return ok, nil
}

func (m *MemoryStore) ListObjects(ctx context.Context, bucket string) ([]models.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	objs, ok := m.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}

	out := make([]models.ObjectInfo, 0, len(objs))
	for name, obj := range objs {
		modified := obj.modified
		out = append(out, models.ObjectInfo{
			BucketName:   bucket,
			ObjectName:   name,
			LastModified: &modified,
			ContentType:  obj.contentType.String(),
			Size:         int64(len(obj.data)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectName < out[j].ObjectName })
	return out, nil
}

func (m *MemoryStore) PutObject(ctx context.Context, bucket, name, localPath string, contentType models.FileType) error {
	if err := m.EnsureBucket(ctx, bucket); err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket][name] = memoryObject{data: data, contentType: contentType, modified: m.now()}
	return nil
}

func (m *MemoryStore) Download(ctx context.Context, bucket, name, dst string) error {
	m.mu.RLock()
	obj, ok := m.buckets[bucket][name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, name)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	return os.WriteFile(dst, obj.data, 0o644)
}

func (m *MemoryStore) DeleteObject(ctx context.Context, bucket, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[bucket], name)
	return nil
}

// Object returns the stored bytes and content type of bucket/name.
func (m *MemoryStore) Object(bucket, name string) ([]byte, models.FileType, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.buckets[bucket][name]
	return obj.data, obj.contentType, ok
}
