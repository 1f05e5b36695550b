// Package storage implements the provider-agnostic object storage layer:
// the adapter capability contract, one adapter per configured provider,
// a registry that selects adapters round-robin with failover, and a
// time-bounded cache for signed download URLs.
//
// Callers are polymorphic over the Adapter interface and never branch on
// the concrete provider type except to format the provider tag.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider tags a configured storage backend. The set is closed; the
// registry maps each tag to exactly one adapter instance built at startup.
type Provider string

const (
	ProviderAWS    Provider = "aws"
	ProviderGoogle Provider = "google"
	ProviderAzure  Provider = "azure"
	ProviderMinio  Provider = "minio"
	ProviderLocal  Provider = "local"
)

// DefaultURLExpiry is the signed-URL lifetime used when the caller does
// not specify one.
const DefaultURLExpiry = time.Hour

// Metadata carries the provider-reported attributes of a stored object.
// Width/height/duration are populated only when the provider reports them.
type Metadata struct {
	SizeBytes   int64  `json:"sizeBytes"`
	MimeType    string `json:"mimeType"`
	ContentHash string `json:"contentHash,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	DurationMs  int64  `json:"durationMs,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
}

// UploadResult is returned by a successful Adapter.Upload.
type UploadResult struct {
	// StorageFileID is the provider-scoped object key.
	StorageFileID string
	// StorageURL is a time-bounded download URL when the provider can
	// issue one at upload time; empty otherwise.
	StorageURL string
	Metadata   Metadata
}

// UploadInput describes one object to store. Body must be non-empty; it
// is held in memory so the registry can retry the same payload on another
// adapter during failover.
type UploadInput struct {
	Body        []byte
	ContentType string
	// OriginalName is used to derive the object key when KeyHint is empty.
	OriginalName string
	// KeyHint, when set, is used verbatim as the object key.
	KeyHint string
}

// ListField selects an optional attribute for ListObjects to populate.
// Size/hash/modified come free with listing on most providers; content
// type usually costs one metadata call per object, so it is opt-in.
type ListField string

const (
	FieldSize        ListField = "size"
	FieldHash        ListField = "hash"
	FieldModified    ListField = "modified"
	FieldContentType ListField = "contentType"
)

// ListOptions bounds an Adapter.ListObjects call.
type ListOptions struct {
	Prefix string
	Fields []ListField
}

// Want reports whether a field was requested. An empty field set means
// keys only.
func (o ListOptions) Want(f ListField) bool {
	for _, have := range o.Fields {
		if have == f {
			return true
		}
	}
	return false
}

// ObjectInfo is one entry of an object listing. Only the requested
// fields are populated; order is the provider's native listing order.
type ObjectInfo struct {
	StorageFileID string
	SizeBytes     int64
	ContentHash   string
	LastModified  time.Time
	ContentType   string
}

// Adapter is the capability contract every provider implements.
type Adapter interface {
	// Provider returns the tag this adapter is registered under.
	Provider() Provider

	// Upload stores in.Body and returns the provider-side identifiers
	// and object metadata. Fails with kind UploadFailed.
	Upload(ctx context.Context, in UploadInput) (*UploadResult, error)

	// Delete removes the object. Fails with FileNotFound when the object
	// does not exist and DeleteFailed otherwise.
	Delete(ctx context.Context, storageFileID string) error

	// ListObjects enumerates objects, populating only the requested
	// optional fields. Fails with kind ListFailed.
	ListObjects(ctx context.Context, opts ListOptions) ([]ObjectInfo, error)

	// PublicURL issues a time-bounded download URL. Fails with kind
	// UrlGenerationFailed.
	PublicURL(ctx context.Context, storageFileID string, expiresIn time.Duration) (string, error)

	// Exists reports whether the object is present. Provider errors other
	// than "not found" fail with kind ValidationFailed.
	Exists(ctx context.Context, storageFileID string) (bool, error)

	// ContentHash returns the provider-native integrity hash (ETag, MD5
	// or equivalent). Fails with ValidationFailed when no hash is
	// available and FileNotFound when the object does not exist.
	ContentHash(ctx context.Context, storageFileID string) (string, error)

	// Download opens the object for reading. The stream is readable
	// exactly once and must be closed by the caller. Fails with
	// FileNotFound or DownloadFailed.
	Download(ctx context.Context, storageFileID string) (io.ReadCloser, error)
}

// ObjectKey resolves the key an upload is stored under: the caller's hint
// verbatim when given, otherwise a derived key of the form
// <unix-millis>-<short-uuid>-<sanitized-original-name>. The uuid fragment
// keeps two same-millisecond uploads of the same name from colliding.
func ObjectKey(in UploadInput) string {
	if in.KeyHint != "" {
		return in.KeyHint
	}
	name := sanitizeName(in.OriginalName)
	if name == "" {
		name = "object"
	}
	return fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), uuid.NewString()[:8], name)
}

// sanitizeName strips path separators and whitespace so a user-supplied
// filename can never escape the bucket namespace.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}
