package api

import (
	"github.com/Traejpg/mission-control-sub000/internal/index"
	"github.com/Traejpg/mission-control-sub000/internal/models"
)

// WriteFileRequest is the request body for replacing a file.
type WriteFileRequest struct {
	Content string `json:"content" example:"## Note\nhello"`
}

// FilesResponse wraps the file listing.
type FilesResponse struct {
	Files []models.File `json:"files"`
	Total int           `json:"total" example:"42"`
}

// TasksResponse wraps all tasks.
type TasksResponse struct {
	Tasks []models.Task `json:"tasks"`
}

// MemoriesResponse wraps all memories.
type MemoriesResponse struct {
	Memories []models.Memory `json:"memories"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Query   string               `json:"query" example:"deploy"`
	Results []index.SearchResult `json:"results"`
}
