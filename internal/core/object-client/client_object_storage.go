package objectclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	appconfig "github.com/markdave123-py/pdfmirror/internal/config"
	"github.com/markdave123-py/pdfmirror/internal/core"
	"github.com/markdave123-py/pdfmirror/internal/models"
)

var _ core.ObjectStore = (*S3Client)(nil)

type S3Client struct {
	client        *s3.Client
	uploader      *manager.Uploader
	downloader    *manager.Downloader
	region        string
	createBuckets bool
	log           *slog.Logger
}

// NewS3Client connects to the S3-compatible endpoint at cfg.MinioAddress using
// path-style addressing, which MinIO requires.
func NewS3Client(ctx context.Context, cfg *appconfig.Config, log *slog.Logger) (*S3Client, error) {
	if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
		return nil, fmt.Errorf("object store credentials not set")
	}
	if cfg.MinioAddress == "" {
		return nil, fmt.Errorf("MINIO_ADDRESS not set")
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(cfg.MinioRegion),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := endpointURL(cfg.MinioAddress, cfg.MinioUseHTTPS)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	log.Info("object store client configured", "endpoint", endpoint, "region", cfg.MinioRegion)

	return &S3Client{
		client:        client,
		uploader:      manager.NewUploader(client),
		downloader:    manager.NewDownloader(client),
		region:        cfg.MinioRegion,
		createBuckets: cfg.MinioCreateBuckets,
		log:           log,
	}, nil
}

func endpointURL(address string, useHTTPS bool) string {
	if useHTTPS {
		return "https://" + address
	}
	return "http://" + address
}

func (c *S3Client) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ctxHead, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.client.HeadBucket(ctxHead, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head bucket %q: %w", bucket, err)
}

func (c *S3Client) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if !c.createBuckets {
		return fmt.Errorf("%w: %s", ErrBucketMissing, bucket)
	}

	ctxMake, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 is the one region that rejects an explicit location constraint.
	if c.region != "" && c.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.region),
		}
	}
	if _, err := c.client.CreateBucket(ctxMake, in); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("s3 create bucket %q: %w", bucket, err)
	}
	c.log.Info("created bucket", "bucket", bucket)
	return nil
}

// ObjectExists probes object metadata. Any response error from the store
// counts as absent; only transport failures are returned.
func (c *S3Client) ObjectExists(ctx context.Context, bucket, name string) (bool, error) {
	ctxHead, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.client.HeadObject(ctxHead, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err == nil {
		return true, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head object %s/%s: %w", bucket, name, err)
}

// ListObjects walks every object of the bucket. No delimiter is sent, so keys
// under "folders" are included.
func (c *S3Client) ListObjects(ctx context.Context, bucket string) ([]models.ObjectInfo, error) {
	p := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})

	out := []models.ObjectInfo{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
			}
			return nil, fmt.Errorf("s3 list objects %q: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			name := aws.ToString(obj.Key)
			out = append(out, models.ObjectInfo{
				BucketName:   bucket,
				ObjectName:   name,
				LastModified: obj.LastModified,
				ContentType:  models.FileTypeFromName(name).String(),
				Size:         aws.ToInt64(obj.Size),
			})
		}
	}
	return out, nil
}

// PutObject uploads the local file at localPath, creating the bucket first
// when allowed.
func (c *S3Client) PutObject(ctx context.Context, bucket, name, localPath string, contentType models.FileType) error {
	if err := c.EnsureBucket(ctx, bucket); err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err = c.uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(name),
		Body:        f,
		ContentType: aws.String(contentType.String()),
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s/%s failed: %w", bucket, name, err)
	}
	c.log.Debug("uploaded object", "bucket", bucket, "object", name, "contentType", contentType)
	return nil
}

// Download streams the object into dst, creating parent directories as needed.
// A partially written dst is removed on failure.
func (c *S3Client) Download(ctx context.Context, bucket, name, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err = c.downloader.Download(ctxGet, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		if isNotFound(err) {
			return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, name)
		}
		return fmt.Errorf("s3 get %s/%s failed: %w", bucket, name, err)
	}
	return nil
}

func (c *S3Client) DeleteObject(ctx context.Context, bucket, name string) error {
	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3 delete %s/%s failed: %w", bucket, name, err)
	}
	c.log.Debug("deleted object", "bucket", bucket, "object", name)
	return nil
}

// isNotFound reports whether err is a store response meaning the bucket or
// key does not exist.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}
