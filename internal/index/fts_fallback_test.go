//go:build !sqlite_fts5

package index

import "testing"

func TestFallbackSearch_AllTermsRequired(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Key: "a", Title: "Garden", Checksum: "1"}, "plant tomatoes in may")
	_ = db.UpsertNote(NoteRow{Key: "b", Title: "Kitchen", Checksum: "2"}, "tomatoes for soup")

	results, err := db.Search("tomatoes may", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Key != "a" {
		t.Errorf("results = %+v", results)
	}
}

func TestFallbackSearch_WildcardsAreLiteral(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Key: "pct", Title: "Budget", Checksum: "1"}, "save 10% monthly")
	_ = db.UpsertNote(NoteRow{Key: "plain", Title: "Other", Checksum: "2"}, "save 100 monthly")

	results, _ := db.Search("10%", 10)
	if len(results) != 1 || results[0].Key != "pct" {
		t.Errorf("results = %+v", results)
	}
	if results, _ := db.Search("_", 10); len(results) != 0 {
		t.Errorf("underscore should not match any character: %+v", results)
	}
}

func TestFallbackSearch_TitleHitsFirst(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Key: "body", Title: "Misc", Checksum: "1", ModifiedAt: 20}, "remember the kettle")
	_ = db.UpsertNote(NoteRow{Key: "title", Title: "Kettle", Checksum: "2", ModifiedAt: 10}, "descale it")

	results, _ := db.Search("kettle", 10)
	if len(results) != 2 || results[0].Key != "title" {
		t.Errorf("ranking = %+v", results)
	}
	if results, _ := db.Search("   ", 10); results != nil {
		t.Errorf("blank query = %+v", results)
	}
}
