package registry

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/example/bundlequeue/internal/clock"
	"github.com/example/bundlequeue/internal/queue/bundle"
	"github.com/example/bundlequeue/internal/queue/scheduler"
	"github.com/example/bundlequeue/internal/rng"
)

type fixedSearchTime int

func (f fixedSearchTime) SearchTimeMinutes() int { return int(f) }

func newReg() *Registry {
	clk := clock.NewManual(0)
	sched := scheduler.New(rng.NewDeterministic(0), clk, fixedSearchTime(10), nil)
	return New(sched, nil)
}

func dirBundle(token, target string) *bundle.Bundle {
	return bundle.New(token, target, false, bundle.PriorityNormal, nil, 0)
}

// S1: add two directory bundles with targets /a/b and /a/b/c/d.
// get_merge_bundle("/a/b/c") returns the /a/b bundle (ancestor);
// get_sub_bundles("/a") returns both (spec.md §8 S1).
func TestScenarioS1MergeAndSubBundles(t *testing.T) {
	r := newReg()
	b1 := dirBundle("b1", "/a/b")
	b2 := dirBundle("b2", "/a/b/c/d")
	r.AddBundle(b1)
	r.AddBundle(b2)

	got, ok := r.GetMergeBundle("/a/b/c")
	if !ok || got != b1 {
		t.Fatalf("expected /a/b bundle as merge target, got %v ok=%v", got, ok)
	}

	subs := r.GetSubBundles("/a")
	if len(subs) != 2 {
		t.Fatalf("expected both bundles under /a, got %d", len(subs))
	}
}

// S6: find_remote_dir("/share/Movie.2020/CD1") with registered local
// /downloads/Movie.2020/CD1: CD1 matches the sub-dir pattern, the
// parent-walk compares "Movie.2020" segments and succeeds (spec.md §8 S6).
func TestScenarioS6FindRemoteDir(t *testing.T) {
	r := newReg()
	b := dirBundle("movie", "/downloads/Movie.2020")
	r.AddBundle(b)
	r.AddBundleItem(b, bundle.Item{Token: "f1", FilePath: "/downloads/Movie.2020/CD1/movie.cd1.avi"})

	full, got, ok := r.FindRemoteDir("/share/Movie.2020/CD1")
	if !ok {
		t.Fatal("expected a match")
	}
	if got != b {
		t.Fatalf("expected the movie bundle, got %v", got)
	}
	if full != "/downloads/Movie.2020/CD1" {
		t.Fatalf("expected the registered local CD1 path, got %q", full)
	}
}

func TestRemoveBundleRequiresDrainedItems(t *testing.T) {
	r := newReg()
	b := dirBundle("x", "/x")
	r.AddBundle(b)
	r.AddBundleItem(b, bundle.Item{Token: "i1", FilePath: "/x/y/i1"})

	if err := r.RemoveBundle(b); err == nil {
		t.Fatal("expected an error removing a bundle with queued items")
	}

	r.RemoveBundleItem(b, bundle.Item{Token: "i1", FilePath: "/x/y/i1"}, false)
	if err := r.RemoveBundle(b); err != nil {
		t.Fatalf("unexpected error after draining items: %v", err)
	}
	if _, err := r.FindBundle("x"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}
}

func TestMoveBundleUpdatesPathIndex(t *testing.T) {
	r := newReg()
	b := dirBundle("m", "/old/target")
	r.AddBundle(b)
	r.MoveBundle(b, "/new/target")

	for _, e := range r.bundleDirs[dirKey("/old/target")] {
		if e.fullPath == "/old/target" {
			t.Fatal("old target must no longer be indexed")
		}
	}
	if entries := r.bundleDirs[dirKey("/new/target")]; len(entries) != 1 {
		t.Fatalf("expected exactly one bundleDirs entry for the new target, got %d", len(entries))
	}
}

func TestMergeOrderRootFirst(t *testing.T) {
	r := newReg()
	root := dirBundle("root", "/a")
	mid := dirBundle("mid", "/a/b")
	leaf := dirBundle("leaf", "/a/b/c")
	r.AddBundle(leaf)
	r.AddBundle(root)
	r.AddBundle(mid)

	order, err := r.MergeOrder("/a/b/c/d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 bundles in merge order, got %d", len(order))
	}
	pos := map[*bundle.Bundle]int{}
	for i, b := range order {
		pos[b] = i
	}
	if pos[root] > pos[mid] || pos[mid] > pos[leaf] {
		t.Fatalf("expected root-first order, got positions root=%d mid=%d leaf=%d", pos[root], pos[mid], pos[leaf])
	}
}

// Property 1 (spec.md §8), checked over random sequences of adds: bundles
// has unique tokens.
func TestUniquenessProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := newReg()
		tokens := map[string]bool{}
		n := rapid.IntRange(1, 20).Draw(rt, "n")
		for i := 0; i < n; i++ {
			token := rapid.StringMatching(`[a-e]`).Draw(rt, "token")
			if tokens[token] {
				continue
			}
			tokens[token] = true
			r.AddBundle(dirBundle(token, "/root/"+token))
		}
		seen := map[string]bool{}
		for tok := range r.bundles {
			if seen[tok] {
				rt.Fatalf("duplicate token %q in registry", tok)
			}
			seen[tok] = true
		}
	})
}

// Property 2 (spec.md §8): after every operation, bundle_dirs exactly
// equals the union over bundles of {root} ∪ {containing_dir(qi)}.
func TestPathIndexConsistencyProperty(t *testing.T) {
	r := newReg()
	b := dirBundle("dir", "/root/dir")
	r.AddBundle(b)
	r.AddBundleItem(b, bundle.Item{Token: "i1", FilePath: "/root/dir/sub/i1"})
	r.AddBundleItem(b, bundle.Item{Token: "i2", FilePath: "/root/dir/sub/i2"})

	expectKeys := map[string]bool{
		dirKey("/root/dir"):     true,
		dirKey("/root/dir/sub"): true,
	}
	for key := range expectKeys {
		if len(r.bundleDirs[key]) == 0 {
			t.Fatalf("expected bundleDirs entry for key %q", key)
		}
	}

	r.RemoveBundleItem(b, bundle.Item{Token: "i1", FilePath: "/root/dir/sub/i1"}, false)
	r.RemoveBundleItem(b, bundle.Item{Token: "i2", FilePath: "/root/dir/sub/i2"}, false)
	if len(r.bundleDirs[dirKey("/root/dir/sub")]) != 0 {
		t.Fatal("expected the sub-dir entry to be removed once both items are gone")
	}
	if len(r.bundleDirs[dirKey("/root/dir")]) != 1 {
		t.Fatal("expected the bundle's own root entry to remain")
	}
}
