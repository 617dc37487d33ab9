package objectclient

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Materializer downloads objects to deterministic paths under a fixed root,
// <root>/<bucket>/<object name>, and removes them again once released.
//
// A path is shared between concurrent holders: the first acquirer downloads,
// later ones wait for it and reuse the file, and the file is deleted when the
// last holder releases it.
type Materializer struct {
	dl   Downloader
	root string

	mu     sync.Mutex
	leases map[string]*lease
}

type lease struct {
	refs  int
	ready chan struct{}
	err   error
}

func NewMaterializer(dl Downloader, root string) (*Materializer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve temp root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create temp root %q: %w", abs, err)
	}
	return &Materializer{dl: dl, root: abs, leases: make(map[string]*lease)}, nil
}

// Root is the absolute temp root. It is never removed by cleanup.
func (m *Materializer) Root() string { return m.root }

// LocalPath is where bucket/name is materialized. Names that would escape the
// bucket directory, or that are not in canonical slash form ("a/./b", "a//b",
// "x/../a", "/a", "a/"), are rejected so each key owns exactly one path.
func (m *Materializer) LocalPath(bucket, name string) (string, error) {
	if bucket == "" || name == "" {
		return "", fmt.Errorf("%w: empty bucket or object name", ErrInvalidObjectName)
	}
	if strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("%w: bucket %q", ErrInvalidObjectName, bucket)
	}
	if path.Clean(name) != name || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return "", fmt.Errorf("%w: %q is not a canonical object name", ErrInvalidObjectName, name)
	}
	bucketDir := filepath.Join(m.root, bucket)
	p := filepath.Join(bucketDir, filepath.FromSlash(name))
	if !strings.HasPrefix(p, bucketDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidObjectName, name)
	}
	return p, nil
}

func (m *Materializer) acquire(ctx context.Context, bucket, name string) (string, error) {
	p, err := m.LocalPath(bucket, name)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	if l, ok := m.leases[p]; ok {
		l.refs++
		m.mu.Unlock()
		select {
		case <-l.ready:
		case <-ctx.Done():
			m.release(p)
			return "", ctx.Err()
		}
		if l.err != nil {
			m.release(p)
			return "", l.err
		}
		return p, nil
	}
	l := &lease{refs: 1, ready: make(chan struct{})}
	m.leases[p] = l
	m.mu.Unlock()

	l.err = m.dl.Download(ctx, bucket, name, p)
	close(l.ready)
	if l.err != nil {
		m.release(p)
		return "", l.err
	}
	return p, nil
}

// release drops one reference to p and deletes the file with any emptied
// parent directories when none are left.
func (m *Materializer) release(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leases[p]
	if !ok {
		return nil
	}
	l.refs--
	if l.refs > 0 {
		return nil
	}
	delete(m.leases, p)

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	m.pruneEmptyParents(filepath.Dir(p))
	return nil
}

// pruneEmptyParents walks up from dir removing empty directories and stops at
// the first non-empty one or at the root. Directories that an active lease is
// about to write into are kept. Callers hold m.mu.
func (m *Materializer) pruneEmptyParents(dir string) {
	prefix := m.root + string(filepath.Separator)
	for strings.HasPrefix(dir, prefix) {
		if m.inUse(dir) {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (m *Materializer) inUse(dir string) bool {
	prefix := dir + string(filepath.Separator)
	for p := range m.leases {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// NewSession starts a scope that records every materialization and releases
// them all in Cleanup.
func (m *Materializer) NewSession() *Session {
	return &Session{m: m}
}

// Session is the per-workflow owner of local materializations. Callers defer
// Cleanup right after NewSession.
type Session struct {
	m     *Materializer
	mu    sync.Mutex
	paths []string
}

// GetObject materializes bucket/name and returns its local path.
func (s *Session) GetObject(ctx context.Context, bucket, name string) (string, error) {
	p, err := s.m.acquire(ctx, bucket, name)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.paths = append(s.paths, p)
	s.mu.Unlock()
	return p, nil
}

// Cleanup releases everything the session materialized. It is safe to call
// more than once.
func (s *Session) Cleanup() error {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	var errs []error
	for i := len(paths) - 1; i >= 0; i-- {
		if err := s.m.release(paths[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
