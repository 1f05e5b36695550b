// Package file manages stored media files: their metadata records, the
// orchestration of provider uploads/downloads against those records, and
// the HTTP surface exposing both.
package file

import (
	"time"

	"github.com/mediavault/service/internal/storage"
)

// StatusComplete is the status of a fully uploaded file. Edits produce a
// new version at the metadata layer; provider bytes are immutable in place.
const StatusComplete = "COMPLETE"

// File is the metadata-store record describing one uploaded media object.
type File struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	OriginalName string     `json:"originalName"`
	MimeType     string     `json:"mimeType"`
	SizeBytes    int64      `json:"sizeBytes"`
	ContentHash  *string    `json:"contentHash,omitempty"`
	Width        *int       `json:"width,omitempty"`
	Height       *int       `json:"height,omitempty"`
	DurationMs   *int64     `json:"durationMs,omitempty"`
	Status       string     `json:"status"`
	Branch       string     `json:"branch"`
	Year         int        `json:"year"`
	Month        int        `json:"month"`
	AccessCount  int64      `json:"accessCount"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
}

// StorageInfo binds a File to exactly one provider-side object. A file
// has at most one active binding at a time; is_active=false marks the
// binding soft-deleted without destroying the stored object.
type StorageInfo struct {
	ID            string           `json:"id"`
	FileID        string           `json:"fileId"`
	Provider      storage.Provider `json:"provider"`
	StorageFileID string           `json:"storageFileId"`
	StorageURL    *string          `json:"storageUrl,omitempty"`
	URLIssuedAt   *time.Time       `json:"urlIssuedAt,omitempty"`
	Metadata      storage.Metadata `json:"metadata"`
	IsActive      bool             `json:"isActive"`
}

// Info is the joined view of a file and its active storage binding,
// returned by the service and serialized by the API.
type Info struct {
	File
	Storage *StorageInfo `json:"storage,omitempty"`
}

// Filter narrows a listing. Zero values mean "any".
type Filter struct {
	Branch     string
	Year       int
	Month      int
	MimePrefix string
}

// Page is one page of a listing.
type Page struct {
	Files       []Info `json:"files"`
	TotalCount  int    `json:"totalCount"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
}

// DeleteResult reports the outcome of a delete.
type DeleteResult struct {
	ID        string     `json:"id"`
	Success   bool       `json:"success"`
	Permanent bool       `json:"permanent"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}
