package fileservice

import (
	"context"
	"errors"
	"testing"

	"github.com/Traejpg/mission-control-sub000/internal/apperr"
	"github.com/Traejpg/mission-control-sub000/internal/docstore"
	"github.com/Traejpg/mission-control-sub000/internal/index"
	"github.com/Traejpg/mission-control-sub000/internal/testutil"
)

func seeded(t *testing.T) (*Service, *docstore.Store) {
	t.Helper()
	store := docstore.New()
	ctx := context.Background()
	for key, content := range map[string]string{
		"2026-02-20": "# Friday\n## Work\n- [ ] ship sync server\n- [x] review PR\n",
		"2026-02-21": "## Note\nhello #greeting\n",
	} {
		if _, err := store.Put(ctx, key, content); err != nil {
			t.Fatal(err)
		}
	}
	return NewService(store, nil), store
}

func TestListFiles_NewestFirstWithDerivedRecords(t *testing.T) {
	svc, _ := seeded(t)
	files := svc.ListFiles(context.Background())
	if len(files) != 2 {
		t.Fatalf("len = %d, want 2", len(files))
	}
	if files[0].Date != "2026-02-21" || files[1].Date != "2026-02-20" {
		t.Errorf("order = %s, %s", files[0].Date, files[1].Date)
	}
	if files[1].Title != "Friday" || len(files[1].Tasks) != 2 {
		t.Errorf("derived = %+v", files[1])
	}
	if len(files[0].Memories) != 1 || files[0].Memories[0].Tags[0] != "greeting" {
		t.Errorf("memories = %+v", files[0].Memories)
	}
}

func TestTasksAndMemories_Aggregate(t *testing.T) {
	svc, _ := seeded(t)
	ctx := context.Background()
	if n := len(svc.Tasks(ctx)); n != 2 {
		t.Errorf("tasks = %d, want 2", n)
	}
	mems := svc.Memories(ctx)
	if len(mems) != 2 || mems[0].Date != "2026-02-21" {
		t.Errorf("memories = %+v", mems)
	}
}

func TestWriteFile_ValidatesDate(t *testing.T) {
	svc, store := seeded(t)
	ctx := context.Background()

	for _, bad := range []string{"", "yesterday", "2026-13-01", "../etc"} {
		if _, err := svc.WriteFile(ctx, bad, "x"); !errors.Is(err, apperr.ErrInvalidKey) {
			t.Errorf("WriteFile(%q) err = %v, want ErrInvalidKey", bad, err)
		}
	}
	if store.Len() != 2 {
		t.Errorf("invalid writes stored")
	}

	f, err := svc.WriteFile(ctx, "2026-02-22", "## Plan\n- [ ] rest")
	if err != nil {
		t.Fatal(err)
	}
	if f.LastModified == 0 || len(f.Tasks) != 1 || f.Tasks[0].Section != "Plan" {
		t.Errorf("file = %+v", f)
	}
}

func TestGetAndDeleteFile(t *testing.T) {
	svc, _ := seeded(t)
	ctx := context.Background()

	f, err := svc.GetFile(ctx, "2026-02-21")
	if err != nil || f.Content != "## Note\nhello #greeting\n" {
		t.Fatalf("GetFile = %+v, %v", f, err)
	}
	if err := svc.DeleteFile(ctx, "2026-02-21"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetFile(ctx, "2026-02-21"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("after delete err = %v", err)
	}
	if svc.Count() != 1 {
		t.Errorf("Count = %d, want 1", svc.Count())
	}
}

func TestSearch_ScanWithoutIndex(t *testing.T) {
	svc, _ := seeded(t)
	res, err := svc.Search(context.Background(), "SYNC", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Date != "2026-02-20" || res[0].Title != "Friday" {
		t.Errorf("results = %+v", res)
	}
}

func TestSearch_UsesIndex(t *testing.T) {
	db := testutil.TestDB(t)
	store := docstore.New(docstore.WithListener(index.NewUpdater(db, nil)))
	svc := NewService(store, db)
	if _, err := svc.WriteFile(context.Background(), "2026-03-03", "# Standup\nmigrated the broadcast engine"); err != nil {
		t.Fatal(err)
	}
	res, err := svc.Search(context.Background(), "broadcast", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Date != "2026-03-03" {
		t.Errorf("results = %+v", res)
	}
}
