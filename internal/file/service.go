package file

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediavault/service/internal/storage"
)

// Store is the metadata-store surface the service depends on. Implemented
// by Repository; faked in tests.
type Store interface {
	CreateWithStorage(ctx context.Context, f *File, si *StorageInfo) error
	GetByID(ctx context.Context, id string) (*Info, error)
	List(ctx context.Context, filter Filter, page, limit int) ([]Info, int, error)
	SoftDelete(ctx context.Context, id string) (time.Time, error)
	DeletePermanent(ctx context.Context, id string) error
	IncrementAccessCount(ctx context.Context, id string) error
	UpdateURL(ctx context.Context, storageInfoID, url string, issuedAt time.Time) error
	Rename(ctx context.Context, id, newName string) error
}

// UploadInput is the caller-facing upload request.
type UploadInput struct {
	Data         []byte
	ContentType  string
	OriginalName string
	KeyHint      string
	Branch       string
	Year         int
	Month        int
}

// DownloadResult carries the opened object stream plus the filename and
// mimetype sourced from the metadata record, not from the provider.
type DownloadResult struct {
	Stream   io.ReadCloser
	Filename string
	MimeType string
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Service orchestrates provider-side operations against metadata-store
// operations: round-robin failover uploads, soft/permanent deletes,
// downloads and signed-URL issuance.
type Service struct {
	store     Store
	registry  *storage.Registry
	urls      *storage.URLCache
	opTimeout time.Duration
	log       zerolog.Logger
}

// NewService wires the orchestrator. opTimeout bounds each provider call;
// zero disables the per-call bound.
func NewService(store Store, registry *storage.Registry, urls *storage.URLCache, opTimeout time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		registry:  registry,
		urls:      urls,
		opTimeout: opTimeout,
		log:       logger,
	}
}

// Upload stores the bytes on the next available provider, then records a
// File and its active StorageInfo in one metadata transaction.
//
// If the metadata write fails after the provider write succeeded, the
// uploaded object is left orphaned on the provider — no compensating
// delete is issued. The orphaned key is logged for operator cleanup.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*Info, error) {
	if len(in.Data) == 0 {
		return nil, storage.NewError(storage.KindValidationFailed, "file data must not be empty")
	}
	if in.Branch == "" {
		return nil, storage.NewError(storage.KindValidationFailed, "branch is required")
	}
	if in.Year == 0 || in.Month < 1 || in.Month > 12 {
		return nil, storage.NewError(storage.KindValidationFailed, "year and month are required")
	}

	provider, res, err := s.registry.Upload(ctx, storage.UploadInput{
		Body:         in.Data,
		ContentType:  in.ContentType,
		OriginalName: in.OriginalName,
		KeyHint:      in.KeyHint,
	}, s.opTimeout)
	if err != nil {
		return nil, err
	}

	f := &File{
		Name:         in.OriginalName,
		OriginalName: in.OriginalName,
		MimeType:     in.ContentType,
		SizeBytes:    res.Metadata.SizeBytes,
		Status:       StatusComplete,
		Branch:       in.Branch,
		Year:         in.Year,
		Month:        in.Month,
	}
	if res.Metadata.ContentHash != "" {
		f.ContentHash = &res.Metadata.ContentHash
	}
	if res.Metadata.Width > 0 {
		f.Width = &res.Metadata.Width
	}
	if res.Metadata.Height > 0 {
		f.Height = &res.Metadata.Height
	}
	if res.Metadata.DurationMs > 0 {
		f.DurationMs = &res.Metadata.DurationMs
	}

	si := &StorageInfo{
		Provider:      provider,
		StorageFileID: res.StorageFileID,
		Metadata:      res.Metadata,
		IsActive:      true,
	}
	if res.StorageURL != "" {
		now := time.Now()
		si.StorageURL = &res.StorageURL
		si.URLIssuedAt = &now
		s.urls.Put(provider, res.StorageFileID, res.StorageURL, storage.DefaultURLExpiry)
	}

	if err := s.store.CreateWithStorage(ctx, f, si); err != nil {
		s.log.Error().
			Str("provider", string(provider)).
			Str("storageFileId", res.StorageFileID).
			Err(err).
			Msg("metadata write failed after provider upload; object is orphaned")
		s.urls.Evict(provider, res.StorageFileID)
		return nil, storage.WrapError(storage.KindDatabaseError, "record uploaded file", err)
	}

	return &Info{File: *f, Storage: si}, nil
}

// Get returns a visible file and its active storage binding.
func (s *Service) Get(ctx context.Context, id string) (*Info, error) {
	return s.lookup(ctx, id)
}

// List returns one page of visible files matching the filter.
func (s *Service) List(ctx context.Context, filter Filter, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	files, total, err := s.store.List(ctx, filter, page, limit)
	if err != nil {
		return nil, storage.WrapError(storage.KindDatabaseError, "list files", err)
	}

	totalPages := (total + limit - 1) / limit
	return &Page{
		Files:       files,
		TotalCount:  total,
		CurrentPage: page,
		TotalPages:  totalPages,
	}, nil
}

// GetByPath lists visible files under one branch/year/month path.
func (s *Service) GetByPath(ctx context.Context, branch string, year, month int) ([]Info, error) {
	files, _, err := s.store.List(ctx, Filter{Branch: branch, Year: year, Month: month}, 1, maxPageLimit)
	if err != nil {
		return nil, storage.WrapError(storage.KindDatabaseError, "list files by path", err)
	}
	return files, nil
}

// Delete removes a file. Soft delete (the default) stamps deleted_at and
// deactivates the storage binding, leaving provider bytes recoverable.
// Permanent delete calls the provider best-effort — a provider failure is
// logged and swallowed so the metadata rows are removed unconditionally:
// database consistency is prioritized over storage consistency, the
// opposite trade from Upload's orphan policy.
func (s *Service) Delete(ctx context.Context, id string, permanent bool) (*DeleteResult, error) {
	info, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	if !permanent {
		deletedAt, err := s.store.SoftDelete(ctx, id)
		if err != nil {
			return nil, s.storeErr("soft delete file", err)
		}
		if info.Storage != nil {
			s.urls.Evict(info.Storage.Provider, info.Storage.StorageFileID)
		}
		return &DeleteResult{ID: id, Success: true, DeletedAt: &deletedAt}, nil
	}

	if info.Storage != nil {
		adapter, ok := s.registry.ByTag(info.Storage.Provider)
		if !ok {
			return nil, storage.Errorf(storage.KindValidationFailed,
				"provider not available: %s", info.Storage.Provider)
		}
		callCtx, cancel := s.callContext(ctx)
		err := adapter.Delete(callCtx, info.Storage.StorageFileID)
		cancel()
		if err != nil {
			s.log.Warn().
				Str("fileId", id).
				Str("provider", string(info.Storage.Provider)).
				Str("storageFileId", info.Storage.StorageFileID).
				Err(err).
				Msg("provider delete failed; removing metadata anyway")
		}
		s.urls.Evict(info.Storage.Provider, info.Storage.StorageFileID)
	}

	if err := s.store.DeletePermanent(ctx, id); err != nil {
		return nil, s.storeErr("delete file", err)
	}
	return &DeleteResult{ID: id, Success: true, Permanent: true}, nil
}

// Download resolves the adapter bound to the file's provider tag and opens
// the object stream. The access counter is incremented after adapter
// resolution but before the stream is opened, so a failed stream open
// still counts as an access attempt.
func (s *Service) Download(ctx context.Context, id string) (*DownloadResult, error) {
	info, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if info.Storage == nil {
		return nil, storage.Errorf(storage.KindValidationFailed, "file %s has no active storage binding", id)
	}

	adapter, ok := s.registry.ByTag(info.Storage.Provider)
	if !ok {
		return nil, storage.Errorf(storage.KindValidationFailed,
			"provider not available: %s", info.Storage.Provider)
	}

	if err := s.store.IncrementAccessCount(ctx, id); err != nil {
		return nil, s.storeErr("increment access count", err)
	}

	// The stream outlives this call, so no per-call timeout is applied.
	stream, err := adapter.Download(ctx, info.Storage.StorageFileID)
	if err != nil {
		return nil, err
	}

	return &DownloadResult{
		Stream:   stream,
		Filename: info.Name,
		MimeType: info.MimeType,
	}, nil
}

// GetURL returns the file with a signed download URL valid for expiresIn.
// The cache is consulted first; a fresh provider URL is cached and
// persisted on the storage binding.
func (s *Service) GetURL(ctx context.Context, id string, expiresIn time.Duration) (*Info, error) {
	if expiresIn <= 0 {
		expiresIn = storage.DefaultURLExpiry
	}

	info, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if info.Storage == nil {
		return nil, storage.Errorf(storage.KindValidationFailed, "file %s has no active storage binding", id)
	}

	if url, ok := s.urls.Get(info.Storage.Provider, info.Storage.StorageFileID); ok {
		info.Storage.StorageURL = &url
		return info, nil
	}

	adapter, ok := s.registry.ByTag(info.Storage.Provider)
	if !ok {
		return nil, storage.Errorf(storage.KindValidationFailed,
			"provider not available: %s", info.Storage.Provider)
	}

	callCtx, cancel := s.callContext(ctx)
	url, err := adapter.PublicURL(callCtx, info.Storage.StorageFileID, expiresIn)
	cancel()
	if err != nil {
		return nil, err
	}

	s.urls.Put(info.Storage.Provider, info.Storage.StorageFileID, url, expiresIn)

	now := time.Now()
	if err := s.store.UpdateURL(ctx, info.Storage.ID, url, now); err != nil {
		return nil, s.storeErr("persist refreshed url", err)
	}
	info.Storage.StorageURL = &url
	info.Storage.URLIssuedAt = &now
	return info, nil
}

// Rename updates the file's display name, recording the change in the
// edit history.
func (s *Service) Rename(ctx context.Context, id, newName string) (*Info, error) {
	if newName == "" {
		return nil, storage.NewError(storage.KindValidationFailed, "name must not be empty")
	}
	if err := s.store.Rename(ctx, id, newName); err != nil {
		return nil, s.storeErr("rename file", err)
	}
	return s.lookup(ctx, id)
}

func (s *Service) lookup(ctx context.Context, id string) (*Info, error) {
	info, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeErr("get file", err)
	}
	return info, nil
}

// storeErr classifies a metadata-store error into the storage taxonomy.
func (s *Service) storeErr(action string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return storage.WrapError(storage.KindFileNotFound, "file not found", err)
	}
	return storage.WrapError(storage.KindDatabaseError, action, err)
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}
