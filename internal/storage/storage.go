// Package storage puts uploaded files into an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"grievanceos/api/internal/util"
)

// MaxUploadBytes is the largest file accepted for upload.
const MaxUploadBytes = 10 << 20

// ObjectStore stores objects and reports where they can be fetched.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PublicURL(key string) string
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

// MinioStore implements ObjectStore on top of the MinIO client.
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
	logger    *slog.Logger
}

func NewMinioStore(opts Options, logger *slog.Logger) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	publicURL := strings.TrimRight(opts.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + opts.Endpoint
	}
	return &MinioStore{
		client:    client,
		bucket:    opts.Bucket,
		publicURL: publicURL,
		logger:    logger.With(slog.String("component", "storage")),
	}, nil
}

// EnsureBucket creates the bucket if missing and makes its objects publicly readable.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
		s.logger.Info("bucket created", slog.String("bucket", s.bucket))
	}
	if err := s.client.SetBucketPolicy(ctx, s.bucket, publicReadPolicy(s.bucket)); err != nil {
		return fmt.Errorf("set bucket policy %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *MinioStore) PublicURL(key string) string {
	return s.publicURL + "/" + s.bucket + "/" + key
}

func publicReadPolicy(bucket string) string {
	return `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::` + bucket + `/*"]}]}`
}

var extChars = regexp.MustCompile(`[^a-z0-9]`)

// ObjectKey namespaces an upload under its organization:
// {orgID}/{unixMillis}-{random6}.{ext}. The extension comes from fileName, or "bin".
func ObjectKey(orgID int64, fileName string, now time.Time) string {
	ext := extChars.ReplaceAllString(strings.ToLower(strings.TrimPrefix(path.Ext(path.Base(fileName)), ".")), "")
	if ext == "" {
		ext = "bin"
	}
	random := util.NewID("")[:6]
	return strconv.FormatInt(orgID, 10) + "/" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + random + "." + ext
}
