package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/markdave123-py/pdfmirror/internal/core"
)

var _ core.TextExtractor = (*Extractor)(nil)

// ErrTimeout is returned when the engine does not finish within the
// configured per-call timeout.
var ErrTimeout = errors.New("ocr timed out")

// Extractor memoizes engine results by canonical absolute image path for the
// lifetime of the process. Entries are never invalidated.
type Extractor struct {
	engine  Engine
	timeout time.Duration
	log     *slog.Logger

	mu    sync.RWMutex
	cache map[string]string
	group singleflight.Group
}

func NewExtractor(engine Engine, timeout time.Duration, log *slog.Logger) *Extractor {
	return &Extractor{
		engine:  engine,
		timeout: timeout,
		log:     log,
		cache:   make(map[string]string),
	}
}

// ExtractText returns the text of the image at imagePath. Concurrent misses on
// the same path share a single engine call.
func (e *Extractor) ExtractText(ctx context.Context, imagePath string) (string, error) {
	key, err := canonicalPath(imagePath)
	if err != nil {
		return "", err
	}

	e.mu.RLock()
	text, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		e.log.Debug("ocr cache hit", "path", key)
		return text, nil
	}

	v, err, _ := e.group.Do(key, func() (any, error) {
		e.mu.RLock()
		text, ok := e.cache[key]
		e.mu.RUnlock()
		if ok {
			return text, nil
		}

		text, err := e.recognize(ctx, key)
		if err != nil {
			return "", err
		}
		e.mu.Lock()
		e.cache[key] = text
		e.mu.Unlock()
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Len is the number of cached entries.
func (e *Extractor) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

func (e *Extractor) recognize(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	// The engine call cannot be interrupted; on timeout it finishes in the
	// background and its result is dropped.
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		text, err := e.engine.Recognize(ctx, path)
		done <- result{text, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("%s: %w", e.engine.Name(), res.err)
		}
		e.log.Debug("ocr finished", "path", path, "engine", e.engine.Name(), "took", time.Since(start))
		return res.text, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s: %s", ErrTimeout, e.timeout, path)
		}
		return "", ctx.Err()
	}
}

// canonicalPath resolves p to an absolute path with symlinks evaluated.
func canonicalPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: local file %s", core.ErrNotFound, abs)
		}
		return "", err
	}
	return resolved, nil
}
