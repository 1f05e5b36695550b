package file

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediavault/service/internal/response"
	"github.com/mediavault/service/internal/storage"
)

func TestWriteError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"FileNotFound", storage.NewError(storage.KindFileNotFound, "gone"), http.StatusNotFound},
		{"ValidationFailed", storage.NewError(storage.KindValidationFailed, "provider not available: azure"), http.StatusBadRequest},
		{"NotImplemented", storage.NewError(storage.KindNotImplemented, "listing not supported"), http.StatusNotImplemented},
		{"UploadFailed", storage.NewError(storage.KindUploadFailed, "all providers failed"), http.StatusInternalServerError},
		{"DatabaseError", storage.NewError(storage.KindDatabaseError, "tx failed"), http.StatusInternalServerError},
		{"ForeignError", errors.New("something else"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)

			var env response.Envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestWriteErrorKeepsKindMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, storage.Errorf(storage.KindValidationFailed, "provider not available: %s", storage.ProviderAzure))

	var env response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "provider not available: azure", env.Error)
}
