package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/bundlequeue/internal/queue/bundle"
)

func TestSaveAndDeleteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewXMLStore(dir, nil)
	b := bundle.New("tok1", "/a/b", false, bundle.PriorityNormal, store, 0)
	b.ClearNew()
	b.AddQueueItem(bundle.Item{Token: "i1", FilePath: "/a/b/i1"})

	if err := b.Save(); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	path := filepath.Join(dir, "tok1.xml")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected descriptor file to exist: %v", err)
	}
	if b.GetDirty() {
		t.Fatal("expected Save to clear the dirty bit")
	}

	if err := b.DeleteDescriptorFile(); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected descriptor file to be removed")
	}
}

func TestDeleteMissingIsNotAnError(t *testing.T) {
	store := NewXMLStore(t.TempDir(), nil)
	if err := store.Delete("never-existed"); err != nil {
		t.Fatalf("deleting a never-written descriptor must not error: %v", err)
	}
}
