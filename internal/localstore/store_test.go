package localstore

import (
	"testing"

	"github.com/rs/zerolog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreGetSetDelete(t *testing.T) {
	s := openTestStore(t)

	t.Run("missing_key", func(t *testing.T) {
		_, ok, err := s.Get(KeyToken)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ok {
			t.Error("expected missing key")
		}
	})

	t.Run("set_then_get", func(t *testing.T) {
		if err := s.Set(KeyToken, "abc123"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		v, ok, err := s.Get(KeyToken)
		if err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
		if v != "abc123" {
			t.Errorf("value = %q, want abc123", v)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.Delete(KeyToken); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, ok, _ := s.Get(KeyToken); ok {
			t.Error("key still present after delete")
		}
		if err := s.Delete(KeyToken); err != nil {
			t.Errorf("deleting missing key: %v", err)
		}
	})
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set(KeyTargetLanguage, "fr"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.Close()

	s, err = Open(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	v, ok, err := s.Get(KeyTargetLanguage)
	if err != nil || !ok || v != "fr" {
		t.Errorf("Get after reopen = %q ok=%v err=%v, want fr", v, ok, err)
	}
}
