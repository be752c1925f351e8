package notes

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/storage"
)

func testIndex(t *testing.T, opts ...Option) (*Index, *storage.FS) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	idx, err := Load(store, opts...)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return idx, store
}

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func TestCreate_StampsAndKeys(t *testing.T) {
	idx, _ := testIndex(t, WithClock(fixedClock(1000)))

	key, err := idx.Create("Groceries")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("key %q should be 32 hex chars", key)
	}
	n, err := idx.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n.Key != "" {
		t.Errorf("server key should be empty, got %q", n.Key)
	}
	if n.LocalKey != key {
		t.Errorf("localkey = %q, want %q", n.LocalKey, key)
	}
	if n.Content != "Groceries" {
		t.Errorf("content = %q", n.Content)
	}
	if n.CreateDate != 1000 || n.ModifyDate != 1000 || n.LModifyDate != 1000 {
		t.Errorf("timestamps = %v/%v/%v, want 1000", n.CreateDate, n.ModifyDate, n.LModifyDate)
	}
	if !n.IsDirty() {
		t.Error("new note must be a push candidate")
	}
}

func TestCreate_RegeneratesOnCollision(t *testing.T) {
	keys := []string{"dup", "dup", "fresh"}
	gen := func() string {
		k := keys[0]
		keys = keys[1:]
		return k
	}
	idx, _ := testIndex(t, WithKeyGenerator(gen))

	first, err := idx.Create("one")
	if err != nil || first != "dup" {
		t.Fatalf("first = %q, %v", first, err)
	}
	second, err := idx.Create("two")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if second != "fresh" {
		t.Errorf("second = %q, want regenerated key %q", second, "fresh")
	}
	if idx.Len() != 2 {
		t.Errorf("len = %d, want 2", idx.Len())
	}
}

func TestCreate_HeldInMemoryUntilSave(t *testing.T) {
	idx, store := testIndex(t)
	key, _ := idx.Create("draft")

	if _, err := store.Load(key); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("note should not be on disk before save, err = %v", err)
	}
	if err := idx.Save(key); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Load(key); err != nil {
		t.Errorf("Load after save: %v", err)
	}
}

func TestSetContent_MarksDirtyAndTouchesTimestamps(t *testing.T) {
	now := int64(1000)
	idx, _ := testIndex(t, WithClock(func() time.Time { return time.Unix(now, 0) }))
	key, _ := idx.Create("title")

	// Simulate a pushed note.
	_ = idx.Exclusive(func(tx *Tx) error {
		n, _ := tx.Get(key)
		n.Key = key
		n.LocalTouch = false
		tx.Put(key, n)
		return nil
	})

	now = 2000
	if err := idx.SetContent(key, "title\nmore"); err != nil {
		t.Fatalf("SetContent: %v", err)
	}
	n, _ := idx.Get(key)
	if !n.LocalTouch {
		t.Error("localtouch should be set")
	}
	if n.ModifyDate != 2000 || n.LModifyDate != 2000 {
		t.Errorf("modifydate/lmodifydate = %v/%v, want 2000", n.ModifyDate, n.LModifyDate)
	}
	if n.CreateDate != 1000 {
		t.Errorf("createdate changed to %v", n.CreateDate)
	}
}

func TestSetContent_UnchangedIsNoop(t *testing.T) {
	idx, _ := testIndex(t)
	_ = idx.Exclusive(func(tx *Tx) error {
		tx.Put("k", &models.Note{Key: "k", Content: "same", ModifyDate: 5})
		return nil
	})
	if err := idx.SetContent("k", "same"); err != nil {
		t.Fatalf("SetContent: %v", err)
	}
	n, _ := idx.Get("k")
	if n.LocalTouch || n.ModifyDate != 5 {
		t.Errorf("unchanged content should not dirty the note: %+v", n)
	}
}

func TestNotFound(t *testing.T) {
	idx, _ := testIndex(t)
	if _, err := idx.GetContent("missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetContent err = %v", err)
	}
	if err := idx.SetContent("missing", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("SetContent err = %v", err)
	}
}

func TestSearch_FilterAndOrder(t *testing.T) {
	idx, _ := testIndex(t)
	_ = idx.Exclusive(func(tx *Tx) error {
		tx.Put("a", &models.Note{Key: "a", Content: "Alpha\nfoo", ModifyDate: 10})
		tx.Put("b", &models.Note{Key: "b", Content: "  \nBeta\nbar", ModifyDate: 30})
		tx.Put("c", &models.Note{Key: "c", Content: "Gamma\nfoo", ModifyDate: 20})
		tx.Put("d", &models.Note{Key: "d", Content: "Delta", ModifyDate: 20})
		return nil
	})

	all, err := idx.SearchAll("")
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	var keys []string
	for _, s := range all {
		keys = append(keys, s.Key)
	}
	if !slices.Equal(keys, []string{"b", "c", "d", "a"}) {
		t.Errorf("order = %v, want [b c d a]", keys)
	}
	if all[0].Title != "Beta" {
		t.Errorf("title = %q, want Beta", all[0].Title)
	}

	foo, _ := idx.SearchAll("foo")
	if len(foo) != 2 || foo[0].Key != "c" || foo[1].Key != "a" {
		t.Errorf("foo hits = %+v", foo)
	}
}

func TestSearch_Restartable(t *testing.T) {
	idx, _ := testIndex(t)
	_, _ = idx.Create("one")
	seq, err := idx.Search("")
	if err != nil {
		t.Fatal(err)
	}
	first := slices.Collect(seq)
	_, _ = idx.Create("two")
	second := slices.Collect(seq)
	if len(first) != 1 || len(second) != 2 {
		t.Errorf("first = %d, second = %d, want 1 and 2", len(first), len(second))
	}
}

func TestSearch_InvalidPattern(t *testing.T) {
	idx, _ := testIndex(t)
	if _, err := idx.Search("("); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestLoad_FromStore(t *testing.T) {
	store, _ := storage.NewFS(t.TempDir())
	_ = store.Save("x1", &models.Note{Key: "x1", Content: "persisted", Syncnum: 2})
	idx, err := Load(store)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, err := idx.GetContent("x1")
	if err != nil || c != "persisted" {
		t.Errorf("content = %q, %v", c, err)
	}
}

func TestReload_IgnoresEqual(t *testing.T) {
	var events []string
	idx, _ := testIndex(t, OnChange(func(kind, key string) { events = append(events, kind+":"+key) }))
	n := &models.Note{Key: "r", Content: "v1"}
	if !idx.Reload("r", n) {
		t.Error("first reload should report a change")
	}
	if idx.Reload("r", n.Clone()) {
		t.Error("identical reload should be ignored")
	}
	if !slices.Equal(events, []string{"created:r"}) {
		t.Errorf("events = %v", events)
	}
}

func TestReload_ExternalEditMarksDirty(t *testing.T) {
	idx, _ := testIndex(t, WithClock(fixedClock(2000)))
	synced := &models.Note{Key: "k1", Content: "orig", Syncnum: 4, ModifyDate: 1000}
	idx.Reload("k1", synced)

	edited := synced.Clone()
	edited.Content = "edited on disk"
	if !idx.Reload("k1", edited) {
		t.Fatal("external edit should be applied")
	}
	n, _ := idx.Get("k1")
	if n.Content != "edited on disk" {
		t.Errorf("content = %q", n.Content)
	}
	if !n.LocalTouch || !n.IsDirty() {
		t.Error("external edit must be marked for push")
	}
	if n.ModifyDate != 2000 || n.LModifyDate != 2000 {
		t.Errorf("modifydate/lmodifydate = %v/%v, want 2000", n.ModifyDate, n.LModifyDate)
	}
}

func TestReload_StaleCopyKeepsUnsavedEdit(t *testing.T) {
	idx, store := testIndex(t)
	key, _ := idx.Create("v1")
	if err := idx.Save(key); err != nil {
		t.Fatal(err)
	}
	stale, err := store.Load(key)
	if err != nil {
		t.Fatal(err)
	}

	if err := idx.SetContent(key, "v2 user edit"); err != nil {
		t.Fatal(err)
	}
	if idx.Reload(key, stale) {
		t.Error("stale disk copy must not replace an unsaved edit")
	}
	if err := idx.Save(key); err != nil {
		t.Fatal(err)
	}
	disk, _ := store.Load(key)
	if disk.Content != "v2 user edit" {
		t.Errorf("disk content = %q, want the user edit", disk.Content)
	}
}

func TestReload_OlderRevisionIgnored(t *testing.T) {
	idx, _ := testIndex(t)
	idx.Reload("k", &models.Note{Key: "k", Content: "rev 5", Syncnum: 5})
	if idx.Reload("k", &models.Note{Key: "k", Content: "rev 4", Syncnum: 4}) {
		t.Error("lower syncnum should be ignored")
	}
	if c, _ := idx.GetContent("k"); c != "rev 5" {
		t.Errorf("content = %q", c)
	}
}

func TestExclusive_TxSnapshotSafeWhileMutating(t *testing.T) {
	idx, _ := testIndex(t)
	_ = idx.Exclusive(func(tx *Tx) error {
		for _, k := range []string{"a", "b", "c"} {
			tx.Put(k, &models.Note{Key: k})
		}
		return nil
	})
	visited := 0
	_ = idx.Exclusive(func(tx *Tx) error {
		for _, k := range tx.Keys() {
			visited++
			tx.Remove(k)
			tx.Put(k+"-new", &models.Note{Key: k + "-new"})
		}
		return nil
	})
	if visited != 3 {
		t.Errorf("visited = %d, want 3", visited)
	}
	if !slices.Equal(idx.Keys(), []string{"a-new", "b-new", "c-new"}) {
		t.Errorf("keys = %v", idx.Keys())
	}
}

func TestConcurrentEditsSerialized(t *testing.T) {
	idx, _ := testIndex(t)
	key, _ := idx.Create("start")
	var wg sync.WaitGroup
	for n := 0; n < 50; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = idx.SetContent(key, "edit")
			_, _ = idx.SearchAll("")
		}()
	}
	wg.Wait()
	c, _ := idx.GetContent(key)
	if c != "edit" {
		t.Errorf("content = %q", c)
	}
}
