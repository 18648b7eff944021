package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/Traejpg/mission-control-sub000/internal/hub"
)

// NewRouter creates a chi router with all API routes mounted.
// status, if non-nil, backs GET /status.
func NewRouter(svc Service, status func() hub.Status) chi.Router {
	h := NewHandler(svc, status)

	r := chi.NewRouter()

	// Files CRUD.
	r.Get("/files", h.ListFiles)
	r.Get("/files/{date}", h.GetFile)
	r.Put("/files/{date}", h.WriteFile)
	r.Delete("/files/{date}", h.DeleteFile)

	// Derived records.
	r.Get("/tasks", h.Tasks)
	r.Get("/memories", h.Memories)

	// Search.
	r.Get("/search", h.Search)

	r.Get("/status", h.Status)

	return r
}
