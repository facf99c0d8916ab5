package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/FileVault/internal/database"
	"github.com/PaulBabatuyi/FileVault/internal/service"
)

type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func NewHandler(svc *service.Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// fileResponse is the wire shape of a record. StorageRef stays internal.
type fileResponse struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsPublic bool   `json:"isPublic"`
	ParentID string `json:"parentId"`
}

func toResponse(f *database.FileRecord) fileResponse {
	return fileResponse{
		ID:       f.ID,
		UserID:   f.OwnerID,
		Name:     f.Name,
		Type:     string(f.Kind),
		IsPublic: f.IsPublic,
		ParentID: f.ParentID,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the service taxonomy to HTTP codes. Not-found and
// access-denied share one answer on purpose.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Reason})
	case errors.Is(err, database.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	case errors.Is(err, service.ErrStorageUnavailable):
		h.logger.Error("storage unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "Storage unavailable"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal error"})
	}
}

func token(r *http.Request) string {
	return r.Header.Get("X-Token")
}

type uploadBody struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Data     string `json:"data"`
	ParentID string `json:"parentId"`
	IsPublic bool   `json:"isPublic"`
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	var body uploadBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return
	}

	file, err := h.svc.Upload(r.Context(), token(r), service.UploadRequest{
		Name:     body.Name,
		Type:     body.Type,
		Data:     body.Data,
		ParentID: body.ParentID,
		IsPublic: body.IsPublic,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(file))
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	file, err := h.svc.GetOne(r.Context(), token(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(file))
}

var pageRe = regexp.MustCompile(`^\d+$`)

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	page := 0
	if p := r.URL.Query().Get("page"); pageRe.MatchString(p) {
		page, _ = strconv.Atoi(p)
	}

	files, err := h.svc.List(r.Context(), token(r), r.URL.Query().Get("parentId"), page)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, toResponse(f))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	file, err := h.svc.Publish(r.Context(), token(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(file))
}

func (h *Handler) Unpublish(w http.ResponseWriter, r *http.Request) {
	file, err := h.svc.Unpublish(r.Context(), token(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(file))
}

func (h *Handler) Content(w http.ResponseWriter, r *http.Request) {
	width := 0
	if s := r.URL.Query().Get("size"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
			return
		}
		width = parsed
	}

	content, err := h.svc.GetContent(r.Context(), token(r), chi.URLParam(r, "id"), width)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", content.MIME)
	w.WriteHeader(http.StatusOK)
	w.Write(content.Data)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	credsAlive, storeAlive := h.svc.Status(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{
		"redis": credsAlive,
		"db":    storeAlive,
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"files": files})
}
