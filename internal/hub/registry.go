package hub

import "sort"

// Registry maps connections to channel names and back. It is not safe for
// concurrent use; the hub loop owns it.
type Registry struct {
	byConn    map[string]map[string]struct{}
	byChannel map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn:    make(map[string]map[string]struct{}),
		byChannel: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds channels to id and returns the ones not already present.
func (r *Registry) Subscribe(id string, channels []string) []string {
	set, ok := r.byConn[id]
	if !ok {
		set = make(map[string]struct{})
		r.byConn[id] = set
	}
	var added []string
	for _, ch := range channels {
		if ch == "" {
			continue
		}
		if _, dup := set[ch]; dup {
			continue
		}
		set[ch] = struct{}{}
		subs, ok := r.byChannel[ch]
		if !ok {
			subs = make(map[string]struct{})
			r.byChannel[ch] = subs
		}
		subs[id] = struct{}{}
		added = append(added, ch)
	}
	return added
}

// Unsubscribe removes channels from id and returns the ones that were present.
func (r *Registry) Unsubscribe(id string, channels []string) []string {
	set := r.byConn[id]
	var removed []string
	for _, ch := range channels {
		if _, ok := set[ch]; !ok {
			continue
		}
		delete(set, ch)
		r.dropSubscriber(ch, id)
		removed = append(removed, ch)
	}
	return removed
}

// ChannelsOf returns the channels of id in sorted order.
func (r *Registry) ChannelsOf(id string) []string {
	out := make([]string, 0, len(r.byConn[id]))
	for ch := range r.byConn[id] {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Subscribers returns the ids subscribed to channel.
func (r *Registry) Subscribers(channel string) []string {
	out := make([]string, 0, len(r.byChannel[channel]))
	for id := range r.byChannel[channel] {
		out = append(out, id)
	}
	return out
}

// Count returns the number of subscribers of channel.
func (r *Registry) Count(channel string) int {
	return len(r.byChannel[channel])
}

// Remove forgets every subscription of id.
func (r *Registry) Remove(id string) {
	for ch := range r.byConn[id] {
		r.dropSubscriber(ch, id)
	}
	delete(r.byConn, id)
}

func (r *Registry) dropSubscriber(channel, id string) {
	subs := r.byChannel[channel]
	delete(subs, id)
	if len(subs) == 0 {
		delete(r.byChannel, channel)
	}
}
