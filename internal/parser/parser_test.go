package parser

import (
	"reflect"
	"testing"
)

func TestParse_SingleMemory(t *testing.T) {
	r, err := Parse("2026-02-21", []byte("## Note\nhello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Memories) != 1 {
		t.Fatalf("len(memories) = %d, want 1", len(r.Memories))
	}
	m := r.Memories[0]
	if m.Title != "Note" {
		t.Errorf("title = %q, want %q", m.Title, "Note")
	}
	if m.Content != "hello" {
		t.Errorf("content = %q, want %q", m.Content, "hello")
	}
	if m.Date != "2026-02-21" || m.ID != "2026-02-21#m0" {
		t.Errorf("identity = %q/%q", m.Date, m.ID)
	}
	if m.Line != 1 {
		t.Errorf("line = %d, want 1", m.Line)
	}
}

func TestParse_TasksAndSections(t *testing.T) {
	input := "# Daily log\n\n## Work\n- [ ] ship sync server\n- [x] write tests\n\n## Home\n* [X] groceries #errands\n"
	r, err := Parse("2026-02-20", []byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "Daily log" {
		t.Errorf("title = %q", r.Title)
	}
	if len(r.Memories) != 2 {
		t.Fatalf("len(memories) = %d, want 2", len(r.Memories))
	}
	if r.Memories[1].Title != "Home" || r.Memories[1].ID != "2026-02-20#m1" {
		t.Errorf("second memory = %+v", r.Memories[1])
	}
	if len(r.Memories[1].Tags) != 1 || r.Memories[1].Tags[0] != "errands" {
		t.Errorf("tags = %v, want [errands]", r.Memories[1].Tags)
	}
	if len(r.Tasks) != 3 {
		t.Fatalf("len(tasks) = %d, want 3", len(r.Tasks))
	}
	if r.Tasks[0].Done || r.Tasks[0].Text != "ship sync server" || r.Tasks[0].Section != "Work" {
		t.Errorf("task 0 = %+v", r.Tasks[0])
	}
	if !r.Tasks[1].Done || !r.Tasks[2].Done {
		t.Errorf("done flags = %v %v", r.Tasks[1].Done, r.Tasks[2].Done)
	}
	if r.Tasks[2].ID != "2026-02-20#t2" || r.Tasks[2].Line != 8 {
		t.Errorf("task 2 identity = %q line %d", r.Tasks[2].ID, r.Tasks[2].Line)
	}
}

func TestParse_Idempotent(t *testing.T) {
	input := []byte("---\ntags:\n  - daily\n---\n## A\n- [ ] one\n## B\ntext #x\n")
	a, err := Parse("2026-01-01", input)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse("2026-01-01", input)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Tasks, b.Tasks) {
		t.Errorf("tasks differ between parses")
	}
	if !reflect.DeepEqual(a.Memories, b.Memories) {
		t.Errorf("memories differ between parses")
	}
}

func TestParse_FrontmatterOffsetsLines(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntags:\n  - daily\n---\n## Note\nbody\n")
	r, err := Parse("2026-01-02", input)
	if err != nil {
		t.Fatal(err)
	}
	if r.Title != "Hello" {
		t.Errorf("title = %q", r.Title)
	}
	if len(r.Memories) != 1 {
		t.Fatalf("len(memories) = %d", len(r.Memories))
	}
	if r.Memories[0].Line != 6 {
		t.Errorf("line = %d, want 6", r.Memories[0].Line)
	}
	if len(r.Memories[0].Tags) != 1 || r.Memories[0].Tags[0] != "daily" {
		t.Errorf("frontmatter tags not inherited: %v", r.Memories[0].Tags)
	}
}

func TestParse_IgnoresFencedCode(t *testing.T) {
	input := "## Snippet\n```\n## not a heading\n- [ ] not a task\n```\n"
	r, err := Parse("2026-01-03", []byte(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Memories) != 1 {
		t.Errorf("len(memories) = %d, want 1", len(r.Memories))
	}
	if len(r.Tasks) != 0 {
		t.Errorf("len(tasks) = %d, want 0", len(r.Tasks))
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	r, err := Parse("k", []byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
}

func TestParse_EmptyContent(t *testing.T) {
	r, err := Parse("k", nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Tasks == nil || r.Memories == nil {
		t.Errorf("expected non-nil empty slices")
	}
}

func TestExtractTags_BaseAndInline(t *testing.T) {
	tags := extractTags("Some text #beta and #alpha again.", []string{"alpha"})
	if len(tags) != 2 || tags[0] != "alpha" || tags[1] != "beta" {
		t.Errorf("tags = %v, want [alpha beta]", tags)
	}
}

func TestDeriveTitle_H1Fallback(t *testing.T) {
	title := deriveTitle(nil, "some text\n# My Heading\nmore")
	if title != "My Heading" {
		t.Errorf("title = %q, want %q", title, "My Heading")
	}
}
