package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediavault/service/internal/config"
)

func newTestLocalAdapter(t *testing.T) *LocalAdapter {
	t.Helper()
	adapter, err := NewLocalAdapter(config.LocalConfig{
		BasePath:   t.TempDir(),
		PublicBase: "http://localhost:8080/objects",
	})
	require.NoError(t, err)
	return adapter
}

func TestLocalAdapter(t *testing.T) {
	ctx := context.Background()
	adapter := newTestLocalAdapter(t)
	payload := []byte("local object payload")

	res, err := adapter.Upload(ctx, UploadInput{
		Body:        payload,
		ContentType: "text/plain",
		KeyHint:     "branch-a/notes.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, "branch-a/notes.txt", res.StorageFileID)
	assert.Equal(t, int64(len(payload)), res.Metadata.SizeBytes)

	wantHash := md5.Sum(payload)
	assert.Equal(t, hex.EncodeToString(wantHash[:]), res.Metadata.ContentHash)

	t.Run("Exists", func(t *testing.T) {
		ok, err := adapter.Exists(ctx, "branch-a/notes.txt")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = adapter.Exists(ctx, "branch-a/other.txt")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ContentHash", func(t *testing.T) {
		hash, err := adapter.ContentHash(ctx, "branch-a/notes.txt")
		require.NoError(t, err)
		assert.Equal(t, res.Metadata.ContentHash, hash)

		_, err = adapter.ContentHash(ctx, "missing.txt")
		assert.True(t, IsKind(err, KindFileNotFound))
	})

	t.Run("Download", func(t *testing.T) {
		stream, err := adapter.Download(ctx, "branch-a/notes.txt")
		require.NoError(t, err)
		defer stream.Close()

		data, err := io.ReadAll(stream)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	})

	t.Run("DownloadMissing", func(t *testing.T) {
		_, err := adapter.Download(ctx, "missing.txt")
		assert.True(t, IsKind(err, KindFileNotFound))
	})

	t.Run("PublicURL", func(t *testing.T) {
		url, err := adapter.PublicURL(ctx, "branch-a/notes.txt", time.Hour)
		require.NoError(t, err)
		assert.Contains(t, url, "http://localhost:8080/objects/")
		assert.Contains(t, url, "expires=")

		_, err = adapter.PublicURL(ctx, "missing.txt", time.Hour)
		assert.True(t, IsKind(err, KindURLGenerationFailed))
	})

	t.Run("ListObjects", func(t *testing.T) {
		_, err := adapter.Upload(ctx, UploadInput{Body: []byte("x"), ContentType: "text/plain", KeyHint: "branch-b/extra.txt"})
		require.NoError(t, err)

		infos, err := adapter.ListObjects(ctx, ListOptions{Prefix: "branch-a/", Fields: []ListField{FieldSize, FieldHash}})
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, "branch-a/notes.txt", infos[0].StorageFileID)
		assert.Equal(t, int64(len(payload)), infos[0].SizeBytes)
		assert.Equal(t, res.Metadata.ContentHash, infos[0].ContentHash)
		// Unrequested fields stay zero.
		assert.True(t, infos[0].LastModified.IsZero())
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, adapter.Delete(ctx, "branch-a/notes.txt"))

		err := adapter.Delete(ctx, "branch-a/notes.txt")
		assert.True(t, IsKind(err, KindFileNotFound))
	})

	t.Run("RejectsTraversalKeys", func(t *testing.T) {
		_, err := adapter.Download(ctx, "../outside.txt")
		assert.True(t, IsKind(err, KindValidationFailed))
	})
}
