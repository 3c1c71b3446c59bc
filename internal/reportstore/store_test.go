package reportstore

import (
	"path/filepath"
	"testing"

	"github.com/kestrelrobotics/epcheck/core/check"
	"github.com/kestrelrobotics/epcheck/core/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testReport(id, created, status string) *check.Report {
	return &check.Report{
		ReportVersion: check.Version,
		ID:            id,
		CreatedAt:     created,
		Reference:     "/data/libero",
		Candidate:     "/data/libero_aligned",
		Relation:      check.RelationIdentityOrder,
		Status:        status,
		Stages: []check.StageResult{
			{Stage: check.StageMetadata, Status: check.StatusPass},
		},
	}
}

func TestSaveAndGet(t *testing.T) {
	store := openTestStore(t)

	r := testReport("11111111-1111-1111-1111-111111111111", "2026-08-26T10:00:00Z", check.StatusPass)
	if err := store.Save(r); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(r.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != r.ID || got.Status != r.Status || got.Relation != r.Relation {
		t.Errorf("Get = %+v, want %+v", got, r)
	}
	if len(got.Stages) != 1 || got.Stages[0].Stage != check.StageMetadata {
		t.Errorf("stages not round-tripped: %+v", got.Stages)
	}
}

func TestSaveDuplicateID(t *testing.T) {
	store := openTestStore(t)

	r := testReport("22222222-2222-2222-2222-222222222222", "2026-08-26T10:00:00Z", check.StatusPass)
	if err := store.Save(r); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(r); err == nil {
		t.Error("saving the same report twice should fail")
	}
}

func TestGetMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get("no-such-id")
	if err == nil {
		t.Fatal("expected error for missing report")
	}
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := openTestStore(t)

	older := testReport("33333333-3333-3333-3333-333333333333", "2026-08-25T09:00:00Z", check.StatusPass)
	newer := testReport("44444444-4444-4444-4444-444444444444", "2026-08-26T09:00:00Z", check.StatusFail)
	for _, r := range []*check.Report{older, newer} {
		if err := store.Save(r); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	list, err := store.List(10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List returned %d rows, want 2", len(list))
	}
	if list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Errorf("List order wrong: %v then %v", list[0].ID, list[1].ID)
	}
	if list[0].Status != check.StatusFail {
		t.Errorf("Status = %q, want fail", list[0].Status)
	}
}

func TestLatest(t *testing.T) {
	store := openTestStore(t)

	older := testReport("55555555-5555-5555-5555-555555555555", "2026-08-25T09:00:00Z", check.StatusFail)
	newer := testReport("66666666-6666-6666-6666-666666666666", "2026-08-26T09:00:00Z", check.StatusPass)
	for _, r := range []*check.Report{older, newer} {
		if err := store.Save(r); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	got, err := store.Latest("/data/libero", "/data/libero_aligned")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if got.ID != newer.ID {
		t.Errorf("Latest = %s, want %s", got.ID, newer.ID)
	}

	if _, err := store.Latest("/nope", "/nope"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Latest for unknown pair should be ErrNotFound, got %v", err)
	}
}
