package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/lehigh-university-libraries/papershelf/internal/models"
)

func (h *Handler) HandleGetImageMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.service.GetImageMetadata(r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"metadata": meta})
}

func (h *Handler) HandleUpdateImageMetadata(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeBody(r)["metadata"]
	if !ok {
		h.writeError(w, "Missing 'metadata' in request body", http.StatusBadRequest)
		return
	}
	var patch []models.ImageMetadata
	if err := json.Unmarshal(raw, &patch); err != nil {
		h.writeError(w, "'metadata' must be a list of image entries", http.StatusBadRequest)
		return
	}
	meta, err := h.service.UpdateImageMetadata(r.PathValue("id"), patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "metadata": meta})
}

func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	path, err := h.service.ResolveImage(r.PathValue("id"), r.PathValue("filename"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	http.ServeFile(w, r, path)
}
