package nonce

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

var uuidV4Pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestGenerate_FormatAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n := Generate()
		if !uuidV4Pattern.MatchString(n) {
			t.Fatalf("Generated nonce %q is not a v4 UUID", n)
		}
		if seen[n] {
			t.Fatalf("Duplicate nonce generated: %s", n)
		}
		seen[n] = true
	}
}

func TestMemoryStore_TakeIsDestructive(t *testing.T) {
	s := NewMemoryStore()
	s.Put("salesforce", "nonce-1")

	got, ok := s.TakeNonce("salesforce")
	if !ok || got != "nonce-1" {
		t.Fatalf("First take = (%q, %v), want (nonce-1, true)", got, ok)
	}

	// Second take must find nothing; this is what defeats replays.
	if _, ok := s.TakeNonce("salesforce"); ok {
		t.Error("Second take should return nothing")
	}
}

func TestMemoryStore_PutOverwrites(t *testing.T) {
	s := NewMemoryStore()
	s.Put("salesforce", "first")
	s.Put("salesforce", "second")

	got, ok := s.TakeNonce("salesforce")
	if !ok || got != "second" {
		t.Errorf("Take = (%q, %v), want the latest nonce", got, ok)
	}
}

func TestMemoryStore_UnknownService(t *testing.T) {
	s := NewMemoryStore()
	if _, ok := s.TakeNonce("never-stored"); ok {
		t.Error("Unknown service should return nothing")
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	s.Put("hubspot", "nonce-abc")

	got, ok := s.TakeNonce("hubspot")
	if !ok || got != "nonce-abc" {
		t.Fatalf("Take = (%q, %v), want (nonce-abc, true)", got, ok)
	}
	if _, ok := s.TakeNonce("hubspot"); ok {
		t.Error("Second take should return nothing")
	}
}

func TestFileStore_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	NewFileStore(dir).Put("hubspot", "nonce-abc")

	// A new store over the same directory models a host restart within the
	// same session.
	restarted := NewFileStore(dir)
	got, ok := restarted.TakeNonce("hubspot")
	if !ok || got != "nonce-abc" {
		t.Errorf("Take after restart = (%q, %v), want (nonce-abc, true)", got, ok)
	}
}

func TestFileStore_FilePermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")
	s := NewFileStore(dir)
	s.Put("hubspot", "nonce-abc")

	dirInfo, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Session directory missing: %v", err)
	}
	if perm := dirInfo.Mode().Perm(); perm != 0700 {
		t.Errorf("Directory permissions = %o, want 0700", perm)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Expected one nonce file, got %d (err: %v)", len(entries), err)
	}
	info, err := entries[0].Info()
	if err != nil {
		t.Fatalf("Failed to stat nonce file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("File permissions = %o, want 0600", perm)
	}
}

func TestFileStore_FailedWriteLeavesNoStaleFile(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	// Occupy the nonce path with a directory so the write fails.
	path := s.path("hubspot")
	if err := os.MkdirAll(path, 0700); err != nil {
		t.Fatal(err)
	}

	s.Put("hubspot", "nonce-2")

	// The failed write must clear the on-disk entry, otherwise a later take
	// would read stale disk state instead of the fallback.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Failed Put should remove the stale on-disk entry")
	}

	got, ok := s.TakeNonce("hubspot")
	if !ok || got != "nonce-2" {
		t.Errorf("Take = (%q, %v), want the latest nonce from the fallback", got, ok)
	}
	if _, ok := s.TakeNonce("hubspot"); ok {
		t.Error("Second take should return nothing")
	}
}

func TestFileStore_SuccessfulWriteClearsFallbackEntry(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	// State a failed Put leaves behind: no file, nonce only in the fallback.
	s.fallback.Put("hubspot", "nonce-1")

	// The next Put succeeds on disk and must retire the fallback entry, so
	// exactly one nonce stays live for the service.
	s.Put("hubspot", "nonce-2")

	got, ok := s.TakeNonce("hubspot")
	if !ok || got != "nonce-2" {
		t.Fatalf("Take = (%q, %v), want (nonce-2, true)", got, ok)
	}
	if stale, ok := s.TakeNonce("hubspot"); ok {
		t.Errorf("Second take returned %q; the fallback entry must not outlive the overwrite", stale)
	}
}

func TestFileStore_FallsBackWhenDirUnavailable(t *testing.T) {
	// A file where the directory should be makes MkdirAll fail.
	base := t.TempDir()
	blocker := filepath.Join(base, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(filepath.Join(blocker, "session"))
	s.Put("hubspot", "nonce-abc")

	got, ok := s.TakeNonce("hubspot")
	if !ok || got != "nonce-abc" {
		t.Errorf("Fallback take = (%q, %v), want (nonce-abc, true)", got, ok)
	}
}
