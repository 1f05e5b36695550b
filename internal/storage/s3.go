package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mediavault/service/internal/config"
)

// S3Adapter stores objects in AWS S3 through the v2 SDK.
type S3Adapter struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3Adapter builds the SDK client, using static credentials when
// configured and the default credential chain otherwise.
func NewS3Adapter(cfg config.AWSConfig) (*S3Adapter, error) {
	ctx := context.Background()

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for S3-compatible test endpoints
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)
	return &S3Adapter{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

// Provider returns the aws tag.
func (s *S3Adapter) Provider() Provider { return ProviderAWS }

// Upload stores in.Body under a derived or hinted key.
func (s *S3Adapter) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	key := ObjectKey(in)
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(in.Body),
		ContentType: aws.String(in.ContentType),
	})
	if err != nil {
		return nil, WrapError(KindUploadFailed, fmt.Sprintf("s3: put object %q", key), err)
	}

	res := &UploadResult{
		StorageFileID: key,
		Metadata: Metadata{
			SizeBytes:   int64(len(in.Body)),
			MimeType:    in.ContentType,
			ContentHash: trimETag(aws.ToString(out.ETag)),
		},
	}
	if url, err := s.PublicURL(ctx, key, DefaultURLExpiry); err == nil {
		res.StorageURL = url
	}
	return res, nil
}

// Delete removes the object, failing with FileNotFound when it is absent.
func (s *S3Adapter) Delete(ctx context.Context, storageFileID string) error {
	if _, err := s.head(ctx, storageFileID); err != nil {
		if s3IsNotFound(err) {
			return Errorf(KindFileNotFound, "s3: object %q not found", storageFileID)
		}
		return WrapError(KindDeleteFailed, fmt.Sprintf("s3: head object %q", storageFileID), err)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storageFileID),
	})
	if err != nil {
		return WrapError(KindDeleteFailed, fmt.Sprintf("s3: delete object %q", storageFileID), err)
	}
	return nil
}

// ListObjects walks the bucket with the SDK paginator.
func (s *S3Adapter) ListObjects(ctx context.Context, opts ListOptions) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(opts.Prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, WrapError(KindListFailed, "s3: list objects", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			info := ObjectInfo{StorageFileID: *obj.Key}
			if opts.Want(FieldSize) && obj.Size != nil {
				info.SizeBytes = *obj.Size
			}
			if opts.Want(FieldHash) {
				info.ContentHash = trimETag(aws.ToString(obj.ETag))
			}
			if opts.Want(FieldModified) && obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			if opts.Want(FieldContentType) {
				head, err := s.head(ctx, *obj.Key)
				if err != nil {
					return nil, WrapError(KindListFailed, fmt.Sprintf("s3: head object %q", *obj.Key), err)
				}
				info.ContentType = aws.ToString(head.ContentType)
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// PublicURL issues a presigned GET URL valid for expiresIn.
func (s *S3Adapter) PublicURL(ctx context.Context, storageFileID string, expiresIn time.Duration) (string, error) {
	if expiresIn <= 0 {
		expiresIn = DefaultURLExpiry
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storageFileID),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", WrapError(KindURLGenerationFailed, fmt.Sprintf("s3: presign object %q", storageFileID), err)
	}
	return req.URL, nil
}

// Exists reports object presence via a head call.
func (s *S3Adapter) Exists(ctx context.Context, storageFileID string) (bool, error) {
	if _, err := s.head(ctx, storageFileID); err != nil {
		if s3IsNotFound(err) {
			return false, nil
		}
		return false, WrapError(KindValidationFailed, fmt.Sprintf("s3: head object %q", storageFileID), err)
	}
	return true, nil
}

// ContentHash returns the object's ETag.
func (s *S3Adapter) ContentHash(ctx context.Context, storageFileID string) (string, error) {
	head, err := s.head(ctx, storageFileID)
	if err != nil {
		if s3IsNotFound(err) {
			return "", Errorf(KindFileNotFound, "s3: object %q not found", storageFileID)
		}
		return "", WrapError(KindValidationFailed, fmt.Sprintf("s3: head object %q", storageFileID), err)
	}
	etag := trimETag(aws.ToString(head.ETag))
	if etag == "" {
		return "", Errorf(KindValidationFailed, "s3: no hash available for object %q", storageFileID)
	}
	return etag, nil
}

// Download opens the object for reading.
func (s *S3Adapter) Download(ctx context.Context, storageFileID string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storageFileID),
	})
	if err != nil {
		if s3IsNotFound(err) {
			return nil, Errorf(KindFileNotFound, "s3: object %q not found", storageFileID)
		}
		return nil, WrapError(KindDownloadFailed, fmt.Sprintf("s3: get object %q", storageFileID), err)
	}
	return out.Body, nil
}

func (s *S3Adapter) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	return s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
}

// s3IsNotFound classifies the SDK error for a missing object.
func s3IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "NotFound") || strings.Contains(msg, "404")
}
