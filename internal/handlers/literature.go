package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/lehigh-university-libraries/papershelf/internal/literature"
	"github.com/lehigh-university-libraries/papershelf/internal/models"
)

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.List()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Get(r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.Delete(id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Record %s deleted", id),
	})
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	apiKey, err := h.service.ParseAPIKey(r.Header.Get("Authorization"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	var upload literature.Upload
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		upload = literature.Upload{Filename: header.Filename, Body: file}
	case isTooLarge(err):
		h.writeError(w, fmt.Sprintf("File too large (max %d MB)", h.maxUpload>>20), http.StatusRequestEntityTooLarge)
		return
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// service reports the missing file
	default:
		h.writeError(w, "Failed to read upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if r.MultipartForm != nil {
		defer cleanupForm(h, r.MultipartForm)
	}

	summary, err := h.service.ProcessUpload(r.Context(), upload, apiKey)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, summary)
}

func (h *Handler) HandleSource(w http.ResponseWriter, r *http.Request) {
	path, err := h.service.ResolveSource(r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, path)
}

func (h *Handler) HandleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || fields == nil {
		h.writeError(w, "Request body must be a JSON object", http.StatusBadRequest)
		return
	}
	record, err := h.service.UpdateBasicMetadata(r.PathValue("id"), fields)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "summary": record.Summary("")})
}

func (h *Handler) HandleReadingTime(w http.ResponseWriter, r *http.Request) {
	payload := decodeBody(r)
	raw, ok := payload["reading_time"]
	if !ok {
		h.writeError(w, "Missing 'reading_time' in request body", http.StatusBadRequest)
		return
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		h.writeError(w, "Invalid 'reading_time'", http.StatusBadRequest)
		return
	}
	readingTime, err := h.service.UpdateReadingTime(r.PathValue("id"), models.ScalarString(value))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "reading_time": readingTime})
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func cleanupForm(h *Handler, form *multipart.Form) {
	if err := form.RemoveAll(); err != nil {
		h.logger.Warn("failed to remove multipart temp files", "err", err)
	}
}
