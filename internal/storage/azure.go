package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/mediavault/service/internal/config"
)

// AzureAdapter stores objects in an Azure Blob Storage container. Signed
// URLs are shared-key SAS links, so the adapter is constructed with shared
// key credentials rather than an identity credential.
type AzureAdapter struct {
	client    *azblob.Client
	container string
}

// NewAzureAdapter builds the azblob client from account name and key.
func NewAzureAdapter(cfg config.AzureConfig) (*AzureAdapter, error) {
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("build azure credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure client: %w", err)
	}
	return &AzureAdapter{client: client, container: cfg.Container}, nil
}

// Provider returns the azure tag.
func (a *AzureAdapter) Provider() Provider { return ProviderAzure }

// Upload stores in.Body under a derived or hinted key. The content hash is
// computed client-side; Azure echoes it back as the blob's Content-MD5.
func (a *AzureAdapter) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	key := ObjectKey(in)
	sum := md5.Sum(in.Body)
	_, err := a.client.UploadBuffer(ctx, a.container, key, in.Body, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &in.ContentType,
			BlobContentMD5:  sum[:],
		},
	})
	if err != nil {
		return nil, WrapError(KindUploadFailed, fmt.Sprintf("azure: upload blob %q", key), err)
	}

	res := &UploadResult{
		StorageFileID: key,
		Metadata: Metadata{
			SizeBytes:   int64(len(in.Body)),
			MimeType:    in.ContentType,
			ContentHash: hex.EncodeToString(sum[:]),
		},
	}
	if url, err := a.PublicURL(ctx, key, DefaultURLExpiry); err == nil {
		res.StorageURL = url
	}
	return res, nil
}

// Delete removes the blob, failing with FileNotFound when it is absent.
func (a *AzureAdapter) Delete(ctx context.Context, storageFileID string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, storageFileID, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return Errorf(KindFileNotFound, "azure: blob %q not found", storageFileID)
		}
		return WrapError(KindDeleteFailed, fmt.Sprintf("azure: delete blob %q", storageFileID), err)
	}
	return nil
}

// ListObjects walks the container with the flat-listing pager.
func (a *AzureAdapter) ListObjects(ctx context.Context, opts ListOptions) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: &opts.Prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, WrapError(KindListFailed, "azure: list blobs", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			info := ObjectInfo{StorageFileID: *item.Name}
			if item.Properties != nil {
				if opts.Want(FieldSize) && item.Properties.ContentLength != nil {
					info.SizeBytes = *item.Properties.ContentLength
				}
				if opts.Want(FieldHash) && len(item.Properties.ContentMD5) > 0 {
					info.ContentHash = hex.EncodeToString(item.Properties.ContentMD5)
				}
				if opts.Want(FieldModified) && item.Properties.LastModified != nil {
					info.LastModified = *item.Properties.LastModified
				}
				if opts.Want(FieldContentType) && item.Properties.ContentType != nil {
					info.ContentType = *item.Properties.ContentType
				}
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// PublicURL issues a read-only SAS URL valid for expiresIn.
func (a *AzureAdapter) PublicURL(ctx context.Context, storageFileID string, expiresIn time.Duration) (string, error) {
	if expiresIn <= 0 {
		expiresIn = DefaultURLExpiry
	}
	blobClient := a.blobClient(storageFileID)
	url, err := blobClient.GetSASURL(sas.BlobPermissions{Read: true}, time.Now().Add(expiresIn), nil)
	if err != nil {
		return "", WrapError(KindURLGenerationFailed, fmt.Sprintf("azure: sign url for blob %q", storageFileID), err)
	}
	return url, nil
}

// Exists reports blob presence via a properties call.
func (a *AzureAdapter) Exists(ctx context.Context, storageFileID string) (bool, error) {
	_, err := a.blobClient(storageFileID).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, WrapError(KindValidationFailed, fmt.Sprintf("azure: stat blob %q", storageFileID), err)
	}
	return true, nil
}

// ContentHash returns the blob's Content-MD5.
func (a *AzureAdapter) ContentHash(ctx context.Context, storageFileID string) (string, error) {
	props, err := a.blobClient(storageFileID).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return "", Errorf(KindFileNotFound, "azure: blob %q not found", storageFileID)
		}
		return "", WrapError(KindValidationFailed, fmt.Sprintf("azure: stat blob %q", storageFileID), err)
	}
	if len(props.ContentMD5) == 0 {
		return "", Errorf(KindValidationFailed, "azure: no hash available for blob %q", storageFileID)
	}
	return hex.EncodeToString(props.ContentMD5), nil
}

// Download opens the blob for reading.
func (a *AzureAdapter) Download(ctx context.Context, storageFileID string) (io.ReadCloser, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, storageFileID, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, Errorf(KindFileNotFound, "azure: blob %q not found", storageFileID)
		}
		return nil, WrapError(KindDownloadFailed, fmt.Sprintf("azure: download blob %q", storageFileID), err)
	}
	return resp.Body, nil
}

func (a *AzureAdapter) blobClient(key string) *blob.Client {
	return a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(key)
}
