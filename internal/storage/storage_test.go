package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	t.Run("HintUsedVerbatim", func(t *testing.T) {
		key := ObjectKey(UploadInput{KeyHint: "branch-a/2026/09/report.pdf", OriginalName: "ignored.pdf"})
		assert.Equal(t, "branch-a/2026/09/report.pdf", key)
	})

	t.Run("DerivedKeyCarriesSanitizedName", func(t *testing.T) {
		key := ObjectKey(UploadInput{OriginalName: "my holiday photo.jpg"})
		assert.True(t, strings.HasSuffix(key, "-my-holiday-photo.jpg"), "got %q", key)
	})

	t.Run("DerivedKeyStripsDirectories", func(t *testing.T) {
		key := ObjectKey(UploadInput{OriginalName: "../../etc/passwd"})
		assert.True(t, strings.HasSuffix(key, "-passwd"), "got %q", key)
		assert.NotContains(t, key, "/")
	})

	t.Run("DerivedKeysAreUnique", func(t *testing.T) {
		in := UploadInput{OriginalName: "photo.jpg"}
		assert.NotEqual(t, ObjectKey(in), ObjectKey(in))
	})

	t.Run("EmptyNameFallsBack", func(t *testing.T) {
		key := ObjectKey(UploadInput{})
		assert.True(t, strings.HasSuffix(key, "-object"), "got %q", key)
	})
}
