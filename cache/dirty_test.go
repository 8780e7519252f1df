package cache

import (
	"path/filepath"
	"testing"
)

func TestDirtyBitLifecycle(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "pkg")
	if err := SetDirty(sub); err != nil {
		t.Fatalf("SetDirty: %v", err)
	}
	if !IsDirty(sub) {
		t.Fatal("expected dirty bit to be set")
	}
	if err := ClearDirty(sub); err != nil {
		t.Fatalf("ClearDirty: %v", err)
	}
	if IsDirty(sub) {
		t.Fatal("expected dirty bit to be cleared")
	}
}

func TestGetCheckedRejectsDirtyRow(t *testing.T) {
	s := newTestStore(t)
	ref := "pkg/1.0@user/stable"
	path := filepath.Join(s.Root(), "provisional")
	if _, err := s.Insert(ref, "rrev", "pkgid", "placeholder", path, ""); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := SetDirty(path); err != nil {
		t.Fatalf("SetDirty: %v", err)
	}

	if _, err := s.GetChecked(ref, "rrev", "pkgid", "placeholder"); err == nil {
		t.Fatal("expected GetChecked to reject a dirty row")
	}

	if err := s.Remediate(path); err != nil {
		t.Fatalf("Remediate: %v", err)
	}
	if _, err := s.Get(ref, "rrev", "pkgid", "placeholder"); err == nil {
		t.Fatal("expected row to be evicted after Remediate")
	}
}
