package hub

import (
	"reflect"
	"testing"
)

func TestRegistry_SubscribeReportsNewChannels(t *testing.T) {
	r := NewRegistry()
	added := r.Subscribe("a", []string{"files", "tasks", "files", ""})
	if !reflect.DeepEqual(added, []string{"files", "tasks"}) {
		t.Errorf("added = %v", added)
	}
	added = r.Subscribe("a", []string{"tasks", "logs"})
	if !reflect.DeepEqual(added, []string{"logs"}) {
		t.Errorf("second added = %v", added)
	}
	if got := r.ChannelsOf("a"); !reflect.DeepEqual(got, []string{"files", "logs", "tasks"}) {
		t.Errorf("ChannelsOf = %v", got)
	}
}

func TestRegistry_Unsubscribe(t *testing.T) {
	r := NewRegistry()
	r.Subscribe("a", []string{"files", "tasks"})
	r.Subscribe("b", []string{"files"})

	removed := r.Unsubscribe("a", []string{"files", "sessions"})
	if !reflect.DeepEqual(removed, []string{"files"}) {
		t.Errorf("removed = %v", removed)
	}
	if r.Count("files") != 1 {
		t.Errorf("files subscribers = %d, want 1", r.Count("files"))
	}
	if got := r.Subscribers("files"); len(got) != 1 || got[0] != "b" {
		t.Errorf("Subscribers = %v", got)
	}
	if removed := r.Unsubscribe("nobody", []string{"files"}); len(removed) != 0 {
		t.Errorf("unknown id removed %v", removed)
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.Subscribe("a", []string{"files", "tasks"})
	r.Subscribe("b", []string{"tasks"})
	r.Remove("a")

	if got := r.ChannelsOf("a"); len(got) != 0 {
		t.Errorf("ChannelsOf after Remove = %v", got)
	}
	if r.Count("files") != 0 || r.Count("tasks") != 1 {
		t.Errorf("counts = files:%d tasks:%d", r.Count("files"), r.Count("tasks"))
	}
}
