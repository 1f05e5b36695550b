package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mediavault/service/internal/response"
	"github.com/mediavault/service/internal/storage"
)

// maxUploadBytes caps multipart upload memory/size.
const maxUploadBytes = 64 << 20 // 64 MiB

// Handler holds HTTP handlers for file endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new file Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type renameRequest struct {
	Name string `json:"name" example:"holiday-2026.jpg"`
}

// Upload godoc
//
//	@Summary		Upload a media file
//	@Description	Stores the file on the next available storage provider and records its metadata. Fails only after every configured provider has been tried.
//	@Tags			files
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file	formData	file	true	"media file"
//	@Param			branch	formData	string	true	"branch the file belongs to"
//	@Param			year	formData	int		true	"year bucket"
//	@Param			month	formData	int		true	"month bucket (1-12)"
//	@Param			key		formData	string	false	"object key to use verbatim instead of a derived key"
//	@Success		201		{object}	response.Envelope{data=Info}
//	@Failure		400		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/files [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "file field is required")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.BadRequest(w, "could not read file")
		return
	}

	year, _ := strconv.Atoi(r.FormValue("year"))
	month, _ := strconv.Atoi(r.FormValue("month"))

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	info, err := h.svc.Upload(r.Context(), UploadInput{
		Data:         data,
		ContentType:  contentType,
		OriginalName: header.Filename,
		KeyHint:      r.FormValue("key"),
		Branch:       r.FormValue("branch"),
		Year:         year,
		Month:        month,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, info)
}

// List godoc
//
//	@Summary		List files
//	@Description	Lists visible (not soft-deleted) files, newest first, with optional filters.
//	@Tags			files
//	@Produce		json
//	@Param			branch	query		string	false	"filter by branch"
//	@Param			year	query		int		false	"filter by year"
//	@Param			month	query		int		false	"filter by month"
//	@Param			mime	query		string	false	"filter by mime-type prefix, e.g. image/"
//	@Param			page	query		int		false	"page number (1-based)"
//	@Param			limit	query		int		false	"page size (max 100)"
//	@Success		200		{object}	response.Envelope{data=Page}
//	@Failure		500		{object}	response.Envelope
//	@Router			/files [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, _ := strconv.Atoi(q.Get("year"))
	month, _ := strconv.Atoi(q.Get("month"))
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := h.svc.List(r.Context(), Filter{
		Branch:     q.Get("branch"),
		Year:       year,
		Month:      month,
		MimePrefix: q.Get("mime"),
	}, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, result)
}

// Get godoc
//
//	@Summary		Get file metadata
//	@Tags			files
//	@Produce		json
//	@Param			id	path		string	true	"file id"
//	@Success		200	{object}	response.Envelope{data=Info}
//	@Failure		404	{object}	response.Envelope
//	@Router			/files/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, info)
}

// Download godoc
//
//	@Summary		Download file bytes
//	@Description	Streams the stored object. Filename and content type come from the metadata record, not from the provider.
//	@Tags			files
//	@Produce		octet-stream
//	@Param			id	path	string	true	"file id"
//	@Success		200	{file}	file
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/files/{id}/download [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Download(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer res.Stream.Close()

	w.Header().Set("Content-Type", res.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	if _, err := io.Copy(w, res.Stream); err != nil {
		// Headers are gone; nothing to do but note the broken stream.
		return
	}
}

// GetURL godoc
//
//	@Summary		Get a signed download URL
//	@Description	Returns the file with a time-bounded download URL, served from cache while the previous URL is still valid.
//	@Tags			files
//	@Produce		json
//	@Param			id		path		string	true	"file id"
//	@Param			expires	query		int		false	"url lifetime in seconds (default 3600)"
//	@Success		200		{object}	response.Envelope{data=Info}
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/files/{id}/url [get]
func (h *Handler) GetURL(w http.ResponseWriter, r *http.Request) {
	expires, _ := strconv.Atoi(r.URL.Query().Get("expires"))
	info, err := h.svc.GetURL(r.Context(), chi.URLParam(r, "id"), time.Duration(expires)*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, info)
}

// Rename godoc
//
//	@Summary		Rename a file
//	@Description	Updates the display name and records the change in the edit history. Provider bytes are immutable in place.
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string			true	"file id"
//	@Param			request	body		renameRequest	true	"new name"
//	@Success		200		{object}	response.Envelope{data=Info}
//	@Failure		400		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Router			/files/{id} [patch]
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	info, err := h.svc.Rename(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, info)
}

// Delete godoc
//
//	@Summary		Delete a file
//	@Description	Soft delete by default: the file disappears from listings but provider bytes stay. With permanent=true the provider object is deleted best-effort and the metadata rows are removed unconditionally.
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id			path		string	true	"file id"
//	@Param			permanent	query		bool	false	"permanently delete"
//	@Success		200			{object}	response.Envelope{data=DeleteResult}
//	@Failure		404			{object}	response.Envelope
//	@Failure		500			{object}	response.Envelope
//	@Router			/files/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	permanent := r.URL.Query().Get("permanent") == "true"
	res, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), permanent)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, res)
}

// GetByPath godoc
//
//	@Summary		List files under a branch/year/month path
//	@Tags			files
//	@Produce		json
//	@Param			branch	path		string	true	"branch"
//	@Param			year	path		int		true	"year"
//	@Param			month	path		int		true	"month"
//	@Success		200		{object}	response.Envelope{data=[]Info}
//	@Failure		400		{object}	response.Envelope
//	@Router			/files/by-path/{branch}/{year}/{month} [get]
func (h *Handler) GetByPath(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		response.BadRequest(w, "invalid year")
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		response.BadRequest(w, "invalid month")
		return
	}

	files, err := h.svc.GetByPath(r.Context(), chi.URLParam(r, "branch"), year, month)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, files)
}

// writeError maps a storage error kind onto an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	var se *storage.Error
	if !errors.As(err, &se) {
		response.InternalError(w)
		return
	}
	switch se.Kind {
	case storage.KindFileNotFound:
		response.NotFound(w, se.Message)
	case storage.KindValidationFailed:
		response.BadRequest(w, se.Message)
	case storage.KindNotImplemented:
		response.Error(w, http.StatusNotImplemented, se.Message)
	default:
		response.Error(w, http.StatusInternalServerError, se.Message)
	}
}
