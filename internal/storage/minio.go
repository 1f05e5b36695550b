package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mediavault/service/internal/config"
)

// MinioAdapter stores objects in MinIO or any S3-compatible endpoint.
// Switching to another S3-compatible store is a matter of endpoint and
// credentials — no code changes.
type MinioAdapter struct {
	client *minio.Client
	bucket string
}

// NewMinioAdapter creates a MinIO client and ensures the bucket exists.
func NewMinioAdapter(cfg config.MinioConfig) (*MinioAdapter, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &MinioAdapter{client: client, bucket: cfg.Bucket}, nil
}

// Provider returns the minio tag.
func (s *MinioAdapter) Provider() Provider { return ProviderMinio }

// Upload stores in.Body under a derived or hinted key.
func (s *MinioAdapter) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	key := ObjectKey(in)
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(in.Body), int64(len(in.Body)), minio.PutObjectOptions{
		ContentType: in.ContentType,
	})
	if err != nil {
		return nil, WrapError(KindUploadFailed, fmt.Sprintf("minio: put object %q", key), err)
	}

	res := &UploadResult{
		StorageFileID: key,
		Metadata: Metadata{
			SizeBytes:   info.Size,
			MimeType:    in.ContentType,
			ContentHash: trimETag(info.ETag),
		},
	}
	if url, err := s.PublicURL(ctx, key, DefaultURLExpiry); err == nil {
		res.StorageURL = url
	}
	return res, nil
}

// Delete removes the object, failing with FileNotFound when it is absent.
func (s *MinioAdapter) Delete(ctx context.Context, storageFileID string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, storageFileID, minio.StatObjectOptions{}); err != nil {
		if minioIsNotFound(err) {
			return Errorf(KindFileNotFound, "minio: object %q not found", storageFileID)
		}
		return WrapError(KindDeleteFailed, fmt.Sprintf("minio: stat object %q", storageFileID), err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, storageFileID, minio.RemoveObjectOptions{}); err != nil {
		return WrapError(KindDeleteFailed, fmt.Sprintf("minio: remove object %q", storageFileID), err)
	}
	return nil
}

// ListObjects enumerates the bucket in the provider's native order.
func (s *MinioAdapter) ListObjects(ctx context.Context, opts ListOptions) ([]ObjectInfo, error) {
	ch := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: opts.Prefix, Recursive: true})
	var infos []ObjectInfo
	for obj := range ch {
		if obj.Err != nil {
			return nil, WrapError(KindListFailed, "minio: list objects", obj.Err)
		}
		info := ObjectInfo{StorageFileID: obj.Key}
		if opts.Want(FieldSize) {
			info.SizeBytes = obj.Size
		}
		if opts.Want(FieldHash) {
			info.ContentHash = trimETag(obj.ETag)
		}
		if opts.Want(FieldModified) {
			info.LastModified = obj.LastModified
		}
		if opts.Want(FieldContentType) {
			// Listing does not carry the content type; one stat per object.
			stat, err := s.client.StatObject(ctx, s.bucket, obj.Key, minio.StatObjectOptions{})
			if err != nil {
				return nil, WrapError(KindListFailed, fmt.Sprintf("minio: stat object %q", obj.Key), err)
			}
			info.ContentType = stat.ContentType
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// PublicURL issues a presigned GET URL valid for expiresIn.
func (s *MinioAdapter) PublicURL(ctx context.Context, storageFileID string, expiresIn time.Duration) (string, error) {
	if expiresIn <= 0 {
		expiresIn = DefaultURLExpiry
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, storageFileID, expiresIn, nil)
	if err != nil {
		return "", WrapError(KindURLGenerationFailed, fmt.Sprintf("minio: presign object %q", storageFileID), err)
	}
	return u.String(), nil
}

// Exists reports object presence via a stat call.
func (s *MinioAdapter) Exists(ctx context.Context, storageFileID string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, storageFileID, minio.StatObjectOptions{})
	if err != nil {
		if minioIsNotFound(err) {
			return false, nil
		}
		return false, WrapError(KindValidationFailed, fmt.Sprintf("minio: stat object %q", storageFileID), err)
	}
	return true, nil
}

// ContentHash returns the object's ETag.
func (s *MinioAdapter) ContentHash(ctx context.Context, storageFileID string) (string, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, storageFileID, minio.StatObjectOptions{})
	if err != nil {
		if minioIsNotFound(err) {
			return "", Errorf(KindFileNotFound, "minio: object %q not found", storageFileID)
		}
		return "", WrapError(KindValidationFailed, fmt.Sprintf("minio: stat object %q", storageFileID), err)
	}
	if stat.ETag == "" {
		return "", Errorf(KindValidationFailed, "minio: no hash available for object %q", storageFileID)
	}
	return trimETag(stat.ETag), nil
}

// Download opens the object for reading.
func (s *MinioAdapter) Download(ctx context.Context, storageFileID string) (io.ReadCloser, error) {
	// GetObject defers errors to the first read; stat first so absence is
	// reported as FileNotFound instead of a read failure.
	if _, err := s.client.StatObject(ctx, s.bucket, storageFileID, minio.StatObjectOptions{}); err != nil {
		if minioIsNotFound(err) {
			return nil, Errorf(KindFileNotFound, "minio: object %q not found", storageFileID)
		}
		return nil, WrapError(KindDownloadFailed, fmt.Sprintf("minio: stat object %q", storageFileID), err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, storageFileID, minio.GetObjectOptions{})
	if err != nil {
		return nil, WrapError(KindDownloadFailed, fmt.Sprintf("minio: get object %q", storageFileID), err)
	}
	return obj, nil
}

// minioIsNotFound classifies the provider error for a missing object.
func minioIsNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// trimETag strips the quotes S3-compatible providers wrap ETags in.
func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}
