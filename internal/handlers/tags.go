package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/lehigh-university-libraries/papershelf/internal/models"
)

func (h *Handler) HandleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.ListTags()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tags)
}

func (h *Handler) HandleTagStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.TagStats()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleRenameTag(w http.ResponseWriter, r *http.Request) {
	newTag, ok := stringField(decodeBody(r), "new_tag")
	if !ok {
		h.writeError(w, "Missing 'new_tag' in request body", http.StatusBadRequest)
		return
	}
	stats, err := h.service.RenameTag(r.PathValue("tag"), newTag)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

func (h *Handler) HandleDeleteTag(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DeleteTag(r.PathValue("tag"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

func (h *Handler) HandleAddTag(w http.ResponseWriter, r *http.Request) {
	tag, ok := stringField(decodeBody(r), "tag")
	if !ok {
		h.writeError(w, "Missing 'tag' in request body", http.StatusBadRequest)
		return
	}
	tags, err := h.service.AddTag(r.PathValue("id"), tag)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "tags": tags})
}

func (h *Handler) HandleRemoveTag(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.RemoveTag(r.PathValue("id"), r.PathValue("tag"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "tags": tags})
}

// stringField reports whether key is present and renders its scalar value.
func stringField(payload map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := payload[key]
	if !ok {
		return "", false
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return models.ScalarString(value), true
}
