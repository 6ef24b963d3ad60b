package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kalambet/persona/internal/rapidapi"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestSavedProfilesTableExists(t *testing.T) {
	s := openTestStore(t)

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_saved_profiles_created'").Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	if count != 1 {
		t.Error("index idx_saved_profiles_created not found")
	}
}

func TestSaveAndGetProfile(t *testing.T) {
	s := openTestStore(t)

	want := rapidapi.Profile{Name: "Alice", Username: "alice", FollowersCount: 12, Verified: true, UserID: "1"}
	saved, err := s.SaveProfile(want)
	if err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if saved.ID == "" {
		t.Error("expected generated ID")
	}
	if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	got, err := s.GetProfile("ALICE")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.ID != saved.ID {
		t.Errorf("ID = %q, want %q", got.ID, saved.ID)
	}
	if got.Profile != want {
		t.Errorf("profile = %+v, want %+v", got.Profile, want)
	}
}

func TestSaveProfile_UpsertKeepsID(t *testing.T) {
	s := openTestStore(t)

	first, err := s.SaveProfile(rapidapi.Profile{Username: "bob", FollowersCount: 1})
	if err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	second, err := s.SaveProfile(rapidapi.Profile{Username: "Bob", FollowersCount: 2})
	if err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("ID changed on upsert: %q -> %q", first.ID, second.ID)
	}
	if second.Profile.FollowersCount != 2 {
		t.Errorf("doc not replaced: %+v", second.Profile)
	}

	all, err := s.ListProfiles("", 0)
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("profiles = %d, want 1", len(all))
	}
}

func TestSaveProfile_EmptyUsername(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.SaveProfile(rapidapi.Profile{Name: "nobody"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetProfile("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListProfiles_Search(t *testing.T) {
	s := openTestStore(t)

	for _, p := range []rapidapi.Profile{
		{Username: "elonmusk", Name: "Elon"},
		{Username: "jack", Name: "Jack Dorsey"},
		{Username: "sama", Name: "Sam Altman"},
	} {
		if _, err := s.SaveProfile(p); err != nil {
			t.Fatalf("SaveProfile: %v", err)
		}
	}

	cases := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"MUSK", 1},
		{"dorsey", 1},
		{"a", 2},
		{"zzz", 0},
	}
	for _, tc := range cases {
		got, err := s.ListProfiles(tc.query, 0)
		if err != nil {
			t.Fatalf("ListProfiles(%q): %v", tc.query, err)
		}
		if len(got) != tc.want {
			t.Errorf("ListProfiles(%q) = %d results, want %d", tc.query, len(got), tc.want)
		}
	}

	limited, err := s.ListProfiles("", 2)
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit ignored: %d results", len(limited))
	}
}

func TestDeleteProfile(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.SaveProfile(rapidapi.Profile{Username: "carol"}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if err := s.DeleteProfile("carol"); err != nil {
		t.Fatalf("DeleteProfile: %v", err)
	}
	if err := s.DeleteProfile("carol"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestOpen_FileBacked(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.SaveProfile(rapidapi.Profile{Username: fmt.Sprintf("u%d", time.Now().UnixNano())}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	s.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.ListProfiles("", 0)
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("profiles after reopen = %d, want 1", len(got))
	}
}
