package internal

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/reconcile"
	"github.com/starford/notesync/internal/testutil"
)

func testOptions(t *testing.T, fr *testutil.FakeRemote) []Option {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Store.Path = filepath.Join(dir, "notes")
	cfg.SQLite.Path = filepath.Join(dir, "mirror.db")
	return []Option{WithConfig(cfg), WithRemote(fr), WithLogOutput(&bytes.Buffer{})}
}

func TestCommands_RequireConfig(t *testing.T) {
	if _, err := Sync(context.Background()); err == nil {
		t.Error("expected error without config")
	}
}

func TestCommands_CreateListSync(t *testing.T) {
	ctx := context.Background()
	fr := testutil.NewFakeRemote()
	fr.Put(&models.Note{Key: "phone1", Content: "Call mom", ModifyDate: 5})
	opts := testOptions(t, fr)

	created, err := CreateNote(ctx, "Buy milk", opts...)
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	// A fresh process sees the saved note.
	items, err := ListNotes(ctx, "milk", opts...)
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(items) != 1 || items[0].Key != created.Key {
		t.Fatalf("items = %+v", items)
	}

	sum, err := Sync(ctx, opts...)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if sum.Pushed != 1 || sum.Inserted != 1 {
		t.Errorf("summary = %+v", sum)
	}

	items, err = ListNotes(ctx, "", opts...)
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("items after sync = %+v", items)
	}
}

func TestCommands_SyncFailureIsPhaseError(t *testing.T) {
	fr := testutil.NewFakeRemote()
	fr.ListErr = apperr.ErrRemoteUnavailable
	_, err := Sync(context.Background(), testOptions(t, fr)...)
	var pe *reconcile.PhaseError
	if !errors.As(err, &pe) || pe.Phase != reconcile.PhasePull {
		t.Fatalf("err = %v", err)
	}
}

func TestCommands_Import(t *testing.T) {
	ctx := context.Background()
	fr := testutil.NewFakeRemote()
	fr.Put(&models.Note{Key: "a", Content: "one"})
	fr.Put(&models.Note{Key: "b", Content: "two"})
	opts := testOptions(t, fr)

	n, err := Import(ctx, opts...)
	if err != nil || n != 2 {
		t.Fatalf("Import = %d, %v", n, err)
	}
	if _, err := Import(ctx, opts...); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("second import err = %v, want ErrAlreadyExists", err)
	}
}
