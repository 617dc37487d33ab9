package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/markdave123-py/pdfmirror/internal/config"
	"github.com/markdave123-py/pdfmirror/internal/core"
	"github.com/markdave123-py/pdfmirror/internal/models"
)

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NoSuchBucket{}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "NotFound"})))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("dial tcp: connection refused")))
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", endpointURL("localhost:9000", false))
	assert.Equal(t, "https://minio.internal", endpointURL("minio.internal", true))
}

// recordedRequest is one call seen by fakeS3.
type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

// fakeS3 answers path-style S3 requests with canned status codes and XML
// bodies, keyed by "METHOD /path".
type fakeS3 struct {
	srv    *httptest.Server
	mu     sync.Mutex
	reqs   []recordedRequest
	routes map[string]http.HandlerFunc
}

func newFakeS3(t *testing.T) *fakeS3 {
	t.Helper()
	f := &fakeS3{routes: map[string]http.HandlerFunc{}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.reqs = append(f.reqs, recordedRequest{
			Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Header: r.Header.Clone(), Body: string(body),
		})
		h, ok := f.routes[r.Method+" "+r.URL.Path]
		f.mu.Unlock()
		if !ok {
			s3Error(w, http.StatusNotImplemented, "NotImplemented", "no route")
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeS3) handle(method, path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = h
}

func (f *fakeS3) requests(method string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, r := range f.reqs {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeS3) address() string {
	return strings.TrimPrefix(f.srv.URL, "http://")
}

func s3Error(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message><RequestId>req-1</RequestId></Error>`, code, msg)
}

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(code) }
}

func testS3Config(address, region string, createBuckets bool) *appconfig.Config {
	return &appconfig.Config{
		MinioAddress:       address,
		MinioAccessKey:     "minioadmin",
		MinioSecretKey:     "minioadmin",
		MinioRegion:        region,
		MinioCreateBuckets: createBuckets,
	}
}

func newTestS3Client(t *testing.T, address, region string, createBuckets bool) *S3Client {
	t.Helper()
	t.Setenv("AWS_MAX_ATTEMPTS", "1")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "none"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "none"))

	c, err := NewS3Client(context.Background(), testS3Config(address, region, createBuckets), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestNewS3ClientRequiresSettings(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewS3Client(context.Background(), testS3Config("", "us-east-1", true), log)
	assert.Error(t, err)

	cfg := testS3Config("localhost:9000", "us-east-1", true)
	cfg.MinioSecretKey = ""
	_, err = NewS3Client(context.Background(), cfg, log)
	assert.Error(t, err)
}

func TestBucketExists(t *testing.T) {
	f := newFakeS3(t)
	f.handle(http.MethodHead, "/pdf", status(http.StatusOK))
	f.handle(http.MethodHead, "/ghost", status(http.StatusNotFound))
	f.handle(http.MethodHead, "/locked", status(http.StatusForbidden))
	c := newTestS3Client(t, f.address(), "us-east-1", true)
	ctx := context.Background()

	ok, err := c.BucketExists(ctx, "pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.BucketExists(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.BucketExists(ctx, "locked")
	assert.Error(t, err)
}

func TestEnsureBucketCreationDisabled(t *testing.T) {
	f := newFakeS3(t)
	f.handle(http.MethodHead, "/pdf", status(http.StatusNotFound))
	c := newTestS3Client(t, f.address(), "us-east-1", false)

	err := c.EnsureBucket(context.Background(), "pdf")
	require.ErrorIs(t, err, ErrBucketMissing)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Empty(t, f.requests(http.MethodPut), "no bucket created")
}

func TestEnsureBucketExistingIsNoop(t *testing.T) {
	f := newFakeS3(t)
	f.handle(http.MethodHead, "/pdf", status(http.StatusOK))
	c := newTestS3Client(t, f.address(), "us-east-1", true)

	require.NoError(t, c.EnsureBucket(context.Background(), "pdf"))
	assert.Empty(t, f.requests(http.MethodPut))
}

func TestEnsureBucketLocationConstraint(t *testing.T) {
	for _, tc := range []struct {
		region     string
		constraint bool
	}{
		{region: "us-east-1", constraint: false},
		{region: "eu-west-1", constraint: true},
	} {
		t.Run(tc.region, func(t *testing.T) {
			f := newFakeS3(t)
			f.handle(http.MethodHead, "/pdf", status(http.StatusNotFound))
			f.handle(http.MethodPut, "/pdf", status(http.StatusOK))
			c := newTestS3Client(t, f.address(), tc.region, true)

			require.NoError(t, c.EnsureBucket(context.Background(), "pdf"))
			puts := f.requests(http.MethodPut)
			require.Len(t, puts, 1)
			if tc.constraint {
				assert.Contains(t, puts[0].Body, "<LocationConstraint>eu-west-1</LocationConstraint>")
			} else {
				assert.NotContains(t, puts[0].Body, "LocationConstraint")
			}
		})
	}
}

func TestEnsureBucketAlreadyOwnedByYou(t *testing.T) {
	f := newFakeS3(t)
	f.handle(http.MethodHead, "/pdf", status(http.StatusNotFound))
	f.handle(http.MethodPut, "/pdf", func(w http.ResponseWriter, r *http.Request) {
		s3Error(w, http.StatusConflict, "BucketAlreadyOwnedByYou", "Your previous request to create the named bucket succeeded and you already own it.")
	})
	c := newTestS3Client(t, f.address(), "us-east-1", true)

	assert.NoError(t, c.EnsureBucket(context.Background(), "pdf"))
}

func TestEnsureBucketCreateFailure(t *testing.T) {
	f := newFakeS3(t)
	f.handle(http.MethodHead, "/pdf", status(http.StatusNotFound))
	f.handle(http.MethodPut, "/pdf", func(w http.ResponseWriter, r *http.Request) {
		s3Error(w, http.StatusConflict, "BucketAlreadyExists", "taken")
	})
	c := newTestS3Client(t, f.address(), "us-east-1", true)

	assert.Error(t, c.EnsureBucket(context.Background(), "pdf"))
}

func TestObjectExists(t *testing.T) {
	f := newFakeS3(t)
	f.handle(http.MethodHead, "/pdf/report.pdf", status(http.StatusOK))
	f.handle(http.MethodHead, "/pdf/missing.pdf", status(http.StatusNotFound))
	f.handle(http.MethodHead, "/pdf/forbidden.pdf", status(http.StatusForbidden))
	c := newTestS3Client(t, f.address(), "us-east-1", true)
	ctx := context.Background()

	ok, err := c.ObjectExists(ctx, "pdf", "report.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	// Any response error from the store counts as absent.
	for _, name := range []string{"missing.pdf", "forbidden.pdf"} {
		ok, err = c.ObjectExists(ctx, "pdf", name)
		require.NoError(t, err, name)
		assert.False(t, ok, name)
	}
}

func TestObjectExistsTransportError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := ln.Addr().String()
	require.NoError(t, ln.Close())
	c := newTestS3Client(t, address, "us-east-1", true)

	ok, err := c.ObjectExists(context.Background(), "pdf", "report.pdf")
	require.Error(t, err)
	assert.False(t, ok)
	var apiErr smithy.APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestListObjects(t *testing.T) {
	f := newFakeS3(t)
	f.handle(http.MethodGet, "/images", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("list-type"))
		assert.Empty(t, r.URL.Query().Get("delimiter"))
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>images</Name><Prefix></Prefix><KeyCount>2</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>
  <Contents><Key>report.pdf/00.jpg</Key><LastModified>2024-05-01T10:00:00.000Z</LastModified><Size>1234</Size></Contents>
  <Contents><Key>report.pdf/01.jpg</Key><LastModified>2024-05-01T10:00:01.000Z</LastModified><Size>99</Size></Contents>
</ListBucketResult>`)
	})
	c := newTestS3Client(t, f.address(), "us-east-1", true)

	objs, err := c.ListObjects(context.Background(), "images")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "images", objs[0].BucketName)
	assert.Equal(t, "report.pdf/00.jpg", objs[0].ObjectName)
	assert.Equal(t, int64(1234), objs[0].Size)
	assert.Equal(t, "image/jpeg", objs[0].ContentType)
	require.NotNil(t, objs[0].LastModified)
	assert.Equal(t, 2024, objs[0].LastModified.Year())
	assert.Equal(t, "report.pdf/01.jpg", objs[1].ObjectName)
}

func TestListObjectsNoSuchBucket(t *testing.T) {
	f := newFakeS3(t)
	f.handle(http.MethodGet, "/ghost", func(w http.ResponseWriter, r *http.Request) {
		s3Error(w, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist")
	})
	c := newTestS3Client(t, f.address(), "us-east-1", true)

	_, err := c.ListObjects(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrBucketNotFound)
	assert.ErrorIs(t, err, core.ErrBadRequest)
}

func TestPutObjectSendsContentType(t *testing.T) {
	f := newFakeS3(t)
	f.handle(http.MethodHead, "/images", status(http.StatusOK))
	f.handle(http.MethodPut, "/images/report.pdf/00.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	})
	c := newTestS3Client(t, f.address(), "us-east-1", true)

	src := filepath.Join(t.TempDir(), "00.jpg")
	require.NoError(t, os.WriteFile(src, []byte("\xff\xd8jpeg"), 0o644))
	require.NoError(t, c.PutObject(context.Background(), "images", "report.pdf/00.jpg", src, models.FileTypeJPEG))

	puts := f.requests(http.MethodPut)
	require.Len(t, puts, 1)
	assert.Equal(t, "/images/report.pdf/00.jpg", puts[0].Path)
	assert.Equal(t, "image/jpeg", puts[0].Header.Get("Content-Type"))
}

func TestPutObjectMissingBucketWithoutCreation(t *testing.T) {
	f := newFakeS3(t)
	f.handle(http.MethodHead, "/images", status(http.StatusNotFound))
	c := newTestS3Client(t, f.address(), "us-east-1", false)

	src := filepath.Join(t.TempDir(), "00.jpg")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
	err := c.PutObject(context.Background(), "images", "a.pdf/00.jpg", src, models.FileTypeJPEG)
	require.ErrorIs(t, err, ErrBucketMissing)
	assert.Empty(t, f.requests(http.MethodPut))
}

func TestDownload(t *testing.T) {
	f := newFakeS3(t)
	f.handle(http.MethodGet, "/images/report.pdf/00.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", "9")
		fmt.Fprint(w, "page zero")
	})
	c := newTestS3Client(t, f.address(), "us-east-1", true)

	dst := filepath.Join(t.TempDir(), "images", "report.pdf", "00.jpg")
	require.NoError(t, c.Download(context.Background(), "images", "report.pdf/00.jpg", dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "page zero", string(data))
}

func TestDownloadNoSuchKeyRemovesPartialFile(t *testing.T) {
	f := newFakeS3(t)
	f.handle(http.MethodGet, "/images/missing.jpg", func(w http.ResponseWriter, r *http.Request) {
		s3Error(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
	})
	c := newTestS3Client(t, f.address(), "us-east-1", true)

	dst := filepath.Join(t.TempDir(), "images", "missing.jpg")
	err := c.Download(context.Background(), "images", "missing.jpg", dst)
	require.ErrorIs(t, err, ErrObjectNotFound)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.NoFileExists(t, dst)
}

func TestDownloadServerErrorIsInternal(t *testing.T) {
	f := newFakeS3(t)
	f.handle(http.MethodGet, "/images/a.jpg", func(w http.ResponseWriter, r *http.Request) {
		s3Error(w, http.StatusForbidden, "AccessDenied", "Access Denied")
	})
	c := newTestS3Client(t, f.address(), "us-east-1", true)

	dst := filepath.Join(t.TempDir(), "a.jpg")
	err := c.Download(context.Background(), "images", "a.jpg", dst)
	require.Error(t, err)
	assert.Equal(t, core.KindInternal, core.KindOf(err))
	assert.NoFileExists(t, dst)
}

func TestDeleteObject(t *testing.T) {
	f := newFakeS3(t)
	f.handle(http.MethodDelete, "/pdf/report.pdf", status(http.StatusNoContent))
	f.handle(http.MethodDelete, "/pdf/locked.pdf", func(w http.ResponseWriter, r *http.Request) {
		s3Error(w, http.StatusForbidden, "AccessDenied", "Access Denied")
	})
	c := newTestS3Client(t, f.address(), "us-east-1", true)

	require.NoError(t, c.DeleteObject(context.Background(), "pdf", "report.pdf"))
	assert.Error(t, c.DeleteObject(context.Background(), "pdf", "locked.pdf"))
	assert.Len(t, f.requests(http.MethodDelete), 2)
}
