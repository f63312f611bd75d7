package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/papershelf/internal/literature"
)

const defaultMaxUpload = 100 << 20

type Handler struct {
	service   *literature.Service
	staticDir string
	maxUpload int64
	logger    *slog.Logger
}

type Option func(*Handler)

// WithStaticDir sets the directory served under "/".
func WithStaticDir(dir string) Option {
	return func(h *Handler) { h.staticDir = dir }
}

// WithMaxUpload caps the size of an upload request body in bytes.
func WithMaxUpload(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func New(service *literature.Service, opts ...Option) *Handler {
	h := &Handler{
		service:   service,
		staticDir: "static",
		maxUpload: defaultMaxUpload,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "http")
	return h
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/literature", h.HandleList)
	mux.HandleFunc("GET /api/literature/{id}", h.HandleGet)
	mux.HandleFunc("DELETE /api/literature/{id}", h.HandleDelete)
	mux.HandleFunc("POST /api/upload", h.HandleUpload)
	mux.HandleFunc("GET /api/literature/{id}/pdf", h.HandleSource)
	mux.HandleFunc("PATCH /api/literature/{id}/metadata", h.HandleUpdateMetadata)
	mux.HandleFunc("PUT /api/literature/{id}/reading-time", h.HandleReadingTime)

	mux.HandleFunc("GET /api/tags", h.HandleListTags)
	mux.HandleFunc("GET /api/tags/stats", h.HandleTagStats)
	mux.HandleFunc("PUT /api/tags/{tag}", h.HandleRenameTag)
	mux.HandleFunc("DELETE /api/tags/{tag}", h.HandleDeleteTag)
	mux.HandleFunc("POST /api/literature/{id}/tags", h.HandleAddTag)
	mux.HandleFunc("DELETE /api/literature/{id}/tags/{tag}", h.HandleRemoveTag)

	mux.HandleFunc("GET /api/literature/{id}/images/metadata", h.HandleGetImageMetadata)
	mux.HandleFunc("PUT /api/literature/{id}/images/metadata", h.HandleUpdateImageMetadata)
	mux.HandleFunc("GET /api/literature/{id}/images/{filename}", h.HandleImage)

	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			h.logger.Error("Unable to write healthcheck", "err", err)
		}
	})
	mux.HandleFunc("GET /", h.HandleStatic)

	return mux
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Unable to encode JSON response", "err", err)
		h.writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		h.logger.Error("Unable to write response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("Unable to write error response", "err", err)
	}
}

// writeServiceError maps the service taxonomy onto status codes. Unrecognized
// errors are logged and hidden behind a generic message.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *literature.Error
	if errors.As(err, &svcErr) {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, literature.ErrNotFound):
			code = http.StatusNotFound
		case errors.Is(err, literature.ErrInvalidArgument):
			code = http.StatusBadRequest
		case errors.Is(err, literature.ErrUnauthorized):
			code = http.StatusUnauthorized
		}
		h.logger.Warn("request failed", "method", r.Method, "path", r.URL.Path, "status", code, "err", err)
		h.writeError(w, svcErr.Error(), code)
		return
	}
	h.logger.Error("Unexpected server error", "method", r.Method, "path", r.URL.Path, "err", err)
	h.writeError(w, "Internal server error", http.StatusInternalServerError)
}

// decodeBody reads a JSON object from the request. A missing or invalid body
// decodes to an empty object.
func decodeBody(r *http.Request) map[string]json.RawMessage {
	payload := map[string]json.RawMessage{}
	if r.Body == nil {
		return payload
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return map[string]json.RawMessage{}
	}
	return payload
}
