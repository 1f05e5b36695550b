package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediavault/service/internal/storage"
)

// ErrNotFound is returned when a file does not exist or is soft-deleted.
// The `deleted_at IS NULL` predicate is the visibility rule everywhere;
// soft-deleted rows stay recoverable by an operator but are invisible here.
var ErrNotFound = errors.New("file not found")

// Repository handles all file database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const fileColumns = `f.id, f.name, f.original_name, f.mime_type, f.size_bytes, f.content_hash,
	f.width, f.height, f.duration_ms, f.status, f.branch, f.year, f.month,
	f.access_count, f.created_at, f.updated_at`

const storageColumns = `s.id, s.file_id, s.provider, s.storage_file_id, s.storage_url,
	s.url_issued_at, s.metadata, s.is_active`

// CreateWithStorage inserts a File row and its active StorageInfo row in
// one transaction. Both records exist or neither does.
func (r *Repository) CreateWithStorage(ctx context.Context, f *File, si *StorageInfo) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO files (name, original_name, mime_type, size_bytes, content_hash,
		                    width, height, duration_ms, status, branch, year, month)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, access_count, created_at, updated_at`,
		f.Name, f.OriginalName, f.MimeType, f.SizeBytes, f.ContentHash,
		f.Width, f.Height, f.DurationMs, f.Status, f.Branch, f.Year, f.Month,
	).Scan(&f.ID, &f.AccessCount, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}

	si.FileID = f.ID
	err = tx.QueryRow(ctx,
		`INSERT INTO storage_info (file_id, provider, storage_file_id, storage_url, url_issued_at, metadata, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		 RETURNING id`,
		si.FileID, si.Provider, si.StorageFileID, si.StorageURL, si.URLIssuedAt, si.Metadata,
	).Scan(&si.ID)
	if err != nil {
		return fmt.Errorf("insert storage info: %w", err)
	}
	si.IsActive = true

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID fetches a visible file and its active storage binding.
func (r *Repository) GetByID(ctx context.Context, id string) (*Info, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+fileColumns+`, `+storageColumns+`
		 FROM files f
		 LEFT JOIN storage_info s ON s.file_id = f.id AND s.is_active
		 WHERE f.id = $1 AND f.deleted_at IS NULL`,
		id,
	)
	info, err := scanInfo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file by id: %w", err)
	}
	return info, nil
}

// List returns one page of visible files matching the filter, newest
// first, along with the total match count.
func (r *Repository) List(ctx context.Context, filter Filter, page, limit int) ([]Info, int, error) {
	where := `f.deleted_at IS NULL`
	args := []any{}
	n := 0
	addArg := func(clause string, v any) {
		n++
		args = append(args, v)
		where += fmt.Sprintf(" AND "+clause, n)
	}
	if filter.Branch != "" {
		addArg("f.branch = $%d", filter.Branch)
	}
	if filter.Year != 0 {
		addArg("f.year = $%d", filter.Year)
	}
	if filter.Month != 0 {
		addArg("f.month = $%d", filter.Month)
	}
	if filter.MimePrefix != "" {
		addArg("f.mime_type LIKE $%d", filter.MimePrefix+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM files f WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	query := `SELECT ` + fileColumns + `, ` + storageColumns + `
		 FROM files f
		 LEFT JOIN storage_info s ON s.file_id = f.id AND s.is_active
		 WHERE ` + where + `
		 ORDER BY f.created_at DESC
		 LIMIT $` + fmt.Sprint(n+1) + ` OFFSET $` + fmt.Sprint(n+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan file: %w", err)
		}
		infos = append(infos, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	return infos, total, nil
}

// SoftDelete stamps deleted_at on the file and deactivates its storage
// binding in one transaction. The provider-side object is untouched.
func (r *Repository) SoftDelete(ctx context.Context, id string) (time.Time, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var deletedAt time.Time
	err = tx.QueryRow(ctx,
		`UPDATE files SET deleted_at = now(), updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING deleted_at`,
		id,
	).Scan(&deletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("soft delete file: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE storage_info SET is_active = FALSE WHERE file_id = $1 AND is_active`, id,
	); err != nil {
		return time.Time{}, fmt.Errorf("deactivate storage info: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, fmt.Errorf("commit tx: %w", err)
	}
	return deletedAt, nil
}

// DeletePermanent removes the file row; storage_info and file_edits rows
// go with it via cascade.
func (r *Repository) DeletePermanent(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementAccessCount bumps the file's access counter atomically.
func (r *Repository) IncrementAccessCount(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE files SET access_count = access_count + 1 WHERE id = $1 AND deleted_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("increment access count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateURL persists a freshly issued signed URL on the storage binding.
func (r *Repository) UpdateURL(ctx context.Context, storageInfoID, url string, issuedAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE storage_info SET storage_url = $2, url_issued_at = $3 WHERE id = $1`,
		storageInfoID, url, issuedAt,
	)
	if err != nil {
		return fmt.Errorf("update storage url: %w", err)
	}
	return nil
}

// Rename updates the file's display name and records the edit in
// file_edits within the same transaction.
func (r *Repository) Rename(ctx context.Context, id, newName string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var oldName string
	err = tx.QueryRow(ctx,
		`UPDATE files SET name = $2, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING (SELECT name FROM files WHERE id = $1)`,
		id, newName,
	).Scan(&oldName)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("rename file: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO file_edits (file_id, field, old_value, new_value) VALUES ($1, 'name', $2, $3)`,
		id, oldName, newName,
	); err != nil {
		return fmt.Errorf("record edit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// scanInfo reads one joined files+storage_info row. The storage columns
// are null when the file has no active binding.
func scanInfo(row pgx.Row) (*Info, error) {
	var info Info
	var (
		siID, siFileID, siStorageFileID *string
		siProvider                      *storage.Provider
		siStorageURL                    *string
		siURLIssuedAt                   *time.Time
		siMetadata                      *storage.Metadata
		siIsActive                      *bool
	)
	err := row.Scan(
		&info.ID, &info.Name, &info.OriginalName, &info.MimeType, &info.SizeBytes, &info.ContentHash,
		&info.Width, &info.Height, &info.DurationMs, &info.Status, &info.Branch, &info.Year, &info.Month,
		&info.AccessCount, &info.CreatedAt, &info.UpdatedAt,
		&siID, &siFileID, &siProvider, &siStorageFileID, &siStorageURL,
		&siURLIssuedAt, &siMetadata, &siIsActive,
	)
	if err != nil {
		return nil, err
	}
	if siID != nil {
		si := &StorageInfo{
			ID:            *siID,
			FileID:        *siFileID,
			Provider:      *siProvider,
			StorageFileID: *siStorageFileID,
			StorageURL:    siStorageURL,
			URLIssuedAt:   siURLIssuedAt,
			IsActive:      *siIsActive,
		}
		if siMetadata != nil {
			si.Metadata = *siMetadata
		}
		info.Storage = si
	}
	return &info, nil
}
