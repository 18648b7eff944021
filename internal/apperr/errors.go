// Package apperr holds sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidKey      = errors.New("invalid key")
	ErrUnknownType     = errors.New("unknown message type")
	ErrUnknownResource = errors.New("unknown resource")
	ErrClosed          = errors.New("closed")
)
