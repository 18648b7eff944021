// Package storage implements the file-backed document source (the vault).
package storage

import "github.com/Traejpg/mission-control-sub000/internal/models"

// Provider is the interface for vault document operations. Keys are file
// names relative to the vault root without the ".md" extension.
type Provider interface {
	// List returns an entry for every document file matching the vault pattern.
	List() ([]models.SourceEntry, error)
	// Read returns the raw bytes of the document stored under key.
	Read(key string) ([]byte, error)
	// Write atomically replaces the document stored under key.
	Write(key string, content []byte) error
	// Delete removes the document stored under key.
	Delete(key string) error
}
