package queueview

import (
	"testing"

	"github.com/example/bundlequeue/internal/persistence"
	"github.com/example/bundlequeue/internal/queue/bundle"
)

func TestSerializeRespectsOnlySubset(t *testing.T) {
	store := persistence.NewXMLStore(t.TempDir(), nil)
	b := bundle.New("tok", "/a/B", false, bundle.PriorityHigh, store, 0)
	b.ClearNew()

	h := Handler{}
	full := h.Serialize(b, nil)
	if full["priority"] != "HIGH" || full["name"] != "B" {
		t.Fatalf("unexpected full serialization: %+v", full)
	}
	partial := h.Serialize(b, map[string]bool{"priority": true})
	if _, ok := partial["name"]; ok {
		t.Fatalf("expected name to be excluded from the partial serialization: %+v", partial)
	}
}

func TestLessOrdersByPriorityThenRespectsDescending(t *testing.T) {
	store := persistence.NewXMLStore(t.TempDir(), nil)
	low := bundle.New("low", "/a", false, bundle.PriorityLow, store, 0)
	high := bundle.New("high", "/b", false, bundle.PriorityHigh, store, 0)

	h := Handler{}
	if !h.Less(low, high, "priority", true) {
		t.Fatal("expected LOW < HIGH ascending")
	}
	if h.Less(low, high, "priority", false) {
		t.Fatal("expected LOW not-less-than HIGH descending")
	}
}

func TestValidSortProperty(t *testing.T) {
	h := Handler{}
	if !h.ValidSortProperty("name") || h.ValidSortProperty("bogus") {
		t.Fatal("unexpected ValidSortProperty result")
	}
}
