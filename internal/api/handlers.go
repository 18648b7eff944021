package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Traejpg/mission-control-sub000/internal/apperr"
	"github.com/Traejpg/mission-control-sub000/internal/hub"
	"github.com/Traejpg/mission-control-sub000/internal/index"
	"github.com/Traejpg/mission-control-sub000/internal/models"
)

// Service is the file service used by the handlers.
type Service interface {
	ListFiles(ctx context.Context) []models.File
	GetFile(ctx context.Context, date string) (*models.File, error)
	WriteFile(ctx context.Context, date, content string) (*models.File, error)
	DeleteFile(ctx context.Context, date string) error
	Tasks(ctx context.Context) []models.Task
	Memories(ctx context.Context) []models.Memory
	Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc    Service
	status func() hub.Status
}

// NewHandler creates a new Handler.
func NewHandler(svc Service, status func() hub.Status) *Handler {
	return &Handler{svc: svc, status: status}
}

// ListFiles handles GET /api/files.
//
//	@Summary	List files, most recent date first
//	@Tags		files
//	@Produce	json
//	@Success	200	{object}	FilesResponse
//	@Router		/files [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files := h.svc.ListFiles(r.Context())
	writeJSON(w, http.StatusOK, FilesResponse{Files: files, Total: len(files)})
}

// GetFile handles GET /api/files/{date}.
//
//	@Summary	Get one file with its tasks and memories
//	@Tags		files
//	@Produce	json
//	@Param		date	path		string	true	"File date (YYYY-MM-DD)"
//	@Success	200		{object}	models.File
//	@Failure	404		{object}	errResponse
//	@Router		/files/{date} [get]
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	f, err := h.svc.GetFile(r.Context(), date)
	if err != nil {
		h.fail(w, "get file", date, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// WriteFile handles PUT /api/files/{date}. The write is broadcast to
// WebSocket subscribers like write_file.
//
//	@Summary	Create or replace a file
//	@Tags		files
//	@Accept		json
//	@Produce	json
//	@Param		date	path		string				true	"File date (YYYY-MM-DD)"
//	@Param		body	body		WriteFileRequest	true	"New content"
//	@Success	200		{object}	models.File
//	@Failure	400		{object}	errResponse
//	@Router		/files/{date} [put]
func (h *Handler) WriteFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	date := chi.URLParam(r, "date")

	var req WriteFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	f, err := h.svc.WriteFile(r.Context(), date, req.Content)
	if err != nil {
		h.fail(w, "write file", date, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// DeleteFile handles DELETE /api/files/{date}.
//
//	@Summary	Delete a file
//	@Tags		files
//	@Param		date	path	string	true	"File date (YYYY-MM-DD)"
//	@Success	204		"File deleted"
//	@Failure	404		{object}	errResponse
//	@Router		/files/{date} [delete]
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if err := h.svc.DeleteFile(r.Context(), date); err != nil {
		h.fail(w, "delete file", date, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Tasks handles GET /api/tasks.
func (h *Handler) Tasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TasksResponse{Tasks: h.svc.Tasks(r.Context())})
}

// Memories handles GET /api/memories.
func (h *Handler) Memories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MemoriesResponse{Memories: h.svc.Memories(r.Context())})
}

// Search handles GET /api/search.
//
//	@Summary	Full-text search across files
//	@Tags		search
//	@Produce	json
//	@Param		q		query		string	true	"Search query"
//	@Param		limit	query		int		false	"Max results"
//	@Success	200		{object}	SearchResponse
//	@Failure	400		{object}	errResponse
//	@Router		/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("api: search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: q, Results: results})
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	if h.status == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("status unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) fail(w http.ResponseWriter, op, date string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrInvalidKey):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error("api: "+op+" failed", slog.String("date", date), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
