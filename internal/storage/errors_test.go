package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	t.Run("KindOf", func(t *testing.T) {
		err := NewError(KindFileNotFound, "gone")
		assert.Equal(t, KindFileNotFound, KindOf(err))
		assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
		assert.Equal(t, Kind(""), KindOf(nil))
	})

	t.Run("KindSurvivesWrapping", func(t *testing.T) {
		inner := NewError(KindFileNotFound, "object missing")
		wrapped := fmt.Errorf("delete file: %w", inner)
		assert.True(t, IsKind(wrapped, KindFileNotFound))
	})

	t.Run("WrapErrorPreservesInnerKind", func(t *testing.T) {
		inner := NewError(KindUploadFailed, "provider rejected")
		outer := WrapError(KindDatabaseError, "record file", inner)
		// A storage error wrapped in more context keeps its classification.
		assert.Equal(t, KindUploadFailed, outer.Kind)
	})

	t.Run("WrapErrorClassifiesForeignErrors", func(t *testing.T) {
		outer := WrapError(KindDownloadFailed, "open stream", errors.New("connection reset"))
		assert.Equal(t, KindDownloadFailed, outer.Kind)
		assert.Contains(t, outer.Error(), "connection reset")
	})

	t.Run("UnwrapExposesCause", func(t *testing.T) {
		cause := errors.New("boom")
		err := WrapError(KindDeleteFailed, "remove object", cause)
		assert.True(t, errors.Is(err, cause))
	})

	t.Run("ErrorsIsMatchesOnKind", func(t *testing.T) {
		err := Errorf(KindValidationFailed, "provider not available: %s", ProviderAzure)
		assert.True(t, errors.Is(err, &Error{Kind: KindValidationFailed}))
		assert.False(t, errors.Is(err, &Error{Kind: KindFileNotFound}))
	})
}
