package docstore

import (
	"context"

	"github.com/Traejpg/mission-control-sub000/internal/models"
)

// Kind classifies a mutation.
type Kind string

const (
	Added   Kind = "added"
	Changed Kind = "changed"
	Deleted Kind = "deleted"
)

// Source tells whether a mutation came from a client write or from an
// external source picked up by the change detector.
type Source string

const (
	SourceClient   Source = "client"
	SourceExternal Source = "external"
)

// Event describes one applied mutation.
type Event struct {
	Kind     Kind
	Source   Source
	Document models.Document
	// Origin is the id of the connection that issued the write, if any.
	Origin string
}

// Listener receives every mutation applied to the store.
type Listener interface {
	DocumentChanged(ctx context.Context, ev Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev Event)

// DocumentChanged calls f.
func (f ListenerFunc) DocumentChanged(ctx context.Context, ev Event) { f(ctx, ev) }

// Listeners fans an event out to several listeners in order.
type Listeners []Listener

// DocumentChanged notifies each listener once.
func (ls Listeners) DocumentChanged(ctx context.Context, ev Event) {
	for _, l := range ls {
		l.DocumentChanged(ctx, ev)
	}
}

type originKey struct{}

// WithOrigin marks ctx with the id of the connection issuing a write.
func WithOrigin(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, originKey{}, id)
}

// OriginFrom returns the connection id stored by WithOrigin, or "".
func OriginFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(originKey{}).(string)
	return id
}
