// Package models defines the domain types shared by the sync server.
package models

// Document is a dated markdown document held by the store.
type Document struct {
	Key          string `json:"date"`
	Content      string `json:"content"`
	LastModified int64  `json:"lastModified"`
}

// Task is a checkbox item derived from a document.
type Task struct {
	ID      string `json:"id"`
	Date    string `json:"date"`
	Text    string `json:"text"`
	Done    bool   `json:"done"`
	Section string `json:"section,omitempty"`
	Line    int    `json:"line"`
}

// Memory is a heading-delimited section derived from a document.
type Memory struct {
	ID      string   `json:"id"`
	Date    string   `json:"date"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	Line    int      `json:"line"`
}

// File is the presentation view of a document sent to clients.
type File struct {
	Date         string   `json:"date"`
	Content      string   `json:"content"`
	LastModified int64    `json:"lastModified"`
	Title        string   `json:"title,omitempty"`
	Tasks        []Task   `json:"tasks"`
	Memories     []Memory `json:"memories"`
}

// Session is an active agent session reported by the upstream gateway.
type Session struct {
	Key       string `json:"key"`
	Label     string `json:"label,omitempty"`
	Status    string `json:"status"`
	Model     string `json:"model,omitempty"`
	StartedAt int64  `json:"startedAt,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

// SourceEntry describes one document as seen in an external source.
type SourceEntry struct {
	Key      string
	Checksum string
	ModTime  int64
	// Err is set when the document exists but could not be read. Checksum
	// and ModTime are then empty.
	Err error
}
