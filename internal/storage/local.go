package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mediavault/service/internal/config"
)

// LocalAdapter stores objects on the local filesystem. It exists for
// development and tests; "signed" URLs are plain public-base URLs with an
// expiry query parameter, since the filesystem cannot enforce expiry.
type LocalAdapter struct {
	basePath   string
	publicBase string
}

// NewLocalAdapter ensures the base directory exists.
func NewLocalAdapter(cfg config.LocalConfig) (*LocalAdapter, error) {
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalAdapter{
		basePath:   cfg.BasePath,
		publicBase: strings.TrimRight(cfg.PublicBase, "/"),
	}, nil
}

// Provider returns the local tag.
func (l *LocalAdapter) Provider() Provider { return ProviderLocal }

// Upload stores in.Body under a derived or hinted key.
func (l *LocalAdapter) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	key := ObjectKey(in)
	path, err := l.fullPath(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, WrapError(KindUploadFailed, fmt.Sprintf("local: create directories for %q", key), err)
	}
	if err := os.WriteFile(path, in.Body, 0o644); err != nil {
		return nil, WrapError(KindUploadFailed, fmt.Sprintf("local: write object %q", key), err)
	}

	sum := md5.Sum(in.Body)
	res := &UploadResult{
		StorageFileID: key,
		Metadata: Metadata{
			SizeBytes:   int64(len(in.Body)),
			MimeType:    in.ContentType,
			ContentHash: hex.EncodeToString(sum[:]),
		},
	}
	if u, err := l.PublicURL(ctx, key, DefaultURLExpiry); err == nil {
		res.StorageURL = u
	}
	return res, nil
}

// Delete removes the object, failing with FileNotFound when it is absent.
func (l *LocalAdapter) Delete(ctx context.Context, storageFileID string) error {
	path, err := l.fullPath(storageFileID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return Errorf(KindFileNotFound, "local: object %q not found", storageFileID)
		}
		return WrapError(KindDeleteFailed, fmt.Sprintf("local: remove object %q", storageFileID), err)
	}
	return nil
}

// ListObjects walks the base directory; order is the filesystem walk
// order (lexicographic).
func (l *LocalAdapter) ListObjects(ctx context.Context, opts ListOptions) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	err := filepath.WalkDir(l.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if opts.Prefix != "" && !strings.HasPrefix(key, opts.Prefix) {
			return nil
		}

		info := ObjectInfo{StorageFileID: key}
		if opts.Want(FieldSize) || opts.Want(FieldModified) {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			if opts.Want(FieldSize) {
				info.SizeBytes = fi.Size()
			}
			if opts.Want(FieldModified) {
				info.LastModified = fi.ModTime()
			}
		}
		if opts.Want(FieldHash) {
			hash, err := l.hashFile(path)
			if err != nil {
				return err
			}
			info.ContentHash = hash
		}
		if opts.Want(FieldContentType) {
			info.ContentType = mime.TypeByExtension(filepath.Ext(key))
		}
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		return nil, WrapError(KindListFailed, "local: list objects", err)
	}
	return infos, nil
}

// PublicURL returns the public-base URL for the object with an expiry
// marker. Existence is checked because there is no provider to fail later.
func (l *LocalAdapter) PublicURL(ctx context.Context, storageFileID string, expiresIn time.Duration) (string, error) {
	if expiresIn <= 0 {
		expiresIn = DefaultURLExpiry
	}
	path, err := l.fullPath(storageFileID)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", WrapError(KindURLGenerationFailed, fmt.Sprintf("local: object %q not accessible", storageFileID), err)
	}
	expires := time.Now().Add(expiresIn).Unix()
	return fmt.Sprintf("%s/%s?expires=%d", l.publicBase, url.PathEscape(storageFileID), expires), nil
}

// Exists reports object presence.
func (l *LocalAdapter) Exists(ctx context.Context, storageFileID string) (bool, error) {
	path, err := l.fullPath(storageFileID)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, WrapError(KindValidationFailed, fmt.Sprintf("local: stat object %q", storageFileID), err)
	}
	return true, nil
}

// ContentHash returns the MD5 of the stored bytes, matching the
// etag-equivalent other providers report.
func (l *LocalAdapter) ContentHash(ctx context.Context, storageFileID string) (string, error) {
	path, err := l.fullPath(storageFileID)
	if err != nil {
		return "", err
	}
	hash, err := l.hashFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", Errorf(KindFileNotFound, "local: object %q not found", storageFileID)
		}
		return "", WrapError(KindValidationFailed, fmt.Sprintf("local: hash object %q", storageFileID), err)
	}
	return hash, nil
}

// Download opens the object for reading.
func (l *LocalAdapter) Download(ctx context.Context, storageFileID string) (io.ReadCloser, error) {
	path, err := l.fullPath(storageFileID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Errorf(KindFileNotFound, "local: object %q not found", storageFileID)
		}
		return nil, WrapError(KindDownloadFailed, fmt.Sprintf("local: open object %q", storageFileID), err)
	}
	return f, nil
}

// fullPath resolves a key inside the base directory, rejecting traversal.
func (l *LocalAdapter) fullPath(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", Errorf(KindValidationFailed, "local: invalid object key %q", key)
	}
	return filepath.Join(l.basePath, filepath.FromSlash(key)), nil
}

func (l *LocalAdapter) hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
