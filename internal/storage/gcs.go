package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/mediavault/service/internal/config"
)

// GCSAdapter stores objects in Google Cloud Storage. Signed URLs use the
// V4 scheme and require credentials able to sign (a service account key
// or ambient IAM signing).
type GCSAdapter struct {
	client *gcs.Client
	bucket string
}

// NewGCSAdapter builds the GCS client from a credentials file when one is
// configured, falling back to application default credentials.
func NewGCSAdapter(ctx context.Context, cfg config.GoogleConfig) (*GCSAdapter, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSAdapter{client: client, bucket: cfg.Bucket}, nil
}

// Provider returns the google tag.
func (g *GCSAdapter) Provider() Provider { return ProviderGoogle }

// Upload stores in.Body under a derived or hinted key.
func (g *GCSAdapter) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	key := ObjectKey(in)
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = in.ContentType
	if _, err := w.Write(in.Body); err != nil {
		_ = w.Close()
		return nil, WrapError(KindUploadFailed, fmt.Sprintf("gcs: write object %q", key), err)
	}
	if err := w.Close(); err != nil {
		return nil, WrapError(KindUploadFailed, fmt.Sprintf("gcs: finalize object %q", key), err)
	}

	attrs := w.Attrs()
	res := &UploadResult{
		StorageFileID: key,
		Metadata: Metadata{
			SizeBytes:   attrs.Size,
			MimeType:    in.ContentType,
			ContentHash: hex.EncodeToString(attrs.MD5),
		},
	}
	if url, err := g.PublicURL(ctx, key, DefaultURLExpiry); err == nil {
		res.StorageURL = url
	}
	return res, nil
}

// Delete removes the object, failing with FileNotFound when it is absent.
func (g *GCSAdapter) Delete(ctx context.Context, storageFileID string) error {
	err := g.client.Bucket(g.bucket).Object(storageFileID).Delete(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return Errorf(KindFileNotFound, "gcs: object %q not found", storageFileID)
		}
		return WrapError(KindDeleteFailed, fmt.Sprintf("gcs: delete object %q", storageFileID), err)
	}
	return nil
}

// ListObjects iterates the bucket in GCS's native (lexicographic) order.
func (g *GCSAdapter) ListObjects(ctx context.Context, opts ListOptions) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	it := g.client.Bucket(g.bucket).Objects(ctx, &gcs.Query{Prefix: opts.Prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(KindListFailed, "gcs: list objects", err)
		}
		info := ObjectInfo{StorageFileID: attrs.Name}
		if opts.Want(FieldSize) {
			info.SizeBytes = attrs.Size
		}
		if opts.Want(FieldHash) {
			info.ContentHash = hex.EncodeToString(attrs.MD5)
		}
		if opts.Want(FieldModified) {
			info.LastModified = attrs.Updated
		}
		if opts.Want(FieldContentType) {
			info.ContentType = attrs.ContentType
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// PublicURL issues a V4 signed GET URL valid for expiresIn.
func (g *GCSAdapter) PublicURL(ctx context.Context, storageFileID string, expiresIn time.Duration) (string, error) {
	if expiresIn <= 0 {
		expiresIn = DefaultURLExpiry
	}
	url, err := g.client.Bucket(g.bucket).SignedURL(storageFileID, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expiresIn),
	})
	if err != nil {
		return "", WrapError(KindURLGenerationFailed, fmt.Sprintf("gcs: sign url for object %q", storageFileID), err)
	}
	return url, nil
}

// Exists reports object presence via an attrs call.
func (g *GCSAdapter) Exists(ctx context.Context, storageFileID string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(storageFileID).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, WrapError(KindValidationFailed, fmt.Sprintf("gcs: stat object %q", storageFileID), err)
	}
	return true, nil
}

// ContentHash returns the object's MD5 as reported by GCS.
func (g *GCSAdapter) ContentHash(ctx context.Context, storageFileID string) (string, error) {
	attrs, err := g.client.Bucket(g.bucket).Object(storageFileID).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return "", Errorf(KindFileNotFound, "gcs: object %q not found", storageFileID)
		}
		return "", WrapError(KindValidationFailed, fmt.Sprintf("gcs: stat object %q", storageFileID), err)
	}
	if len(attrs.MD5) == 0 {
		return "", Errorf(KindValidationFailed, "gcs: no hash available for object %q", storageFileID)
	}
	return hex.EncodeToString(attrs.MD5), nil
}

// Download opens the object for reading.
func (g *GCSAdapter) Download(ctx context.Context, storageFileID string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(g.bucket).Object(storageFileID).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, Errorf(KindFileNotFound, "gcs: object %q not found", storageFileID)
		}
		return nil, WrapError(KindDownloadFailed, fmt.Sprintf("gcs: open object %q", storageFileID), err)
	}
	return r, nil
}
