package bundle

import "testing"

func TestNewBundleStartsFlaggedNew(t *testing.T) {
	b := New("t1", "/a/b", false, PriorityNormal, nil, 0)
	if !b.HasFlag(FlagNew) {
		t.Fatal("expected a freshly constructed bundle to carry FlagNew")
	}
	if b.AllowAutoSearch() {
		t.Fatal("a NEW bundle must never be searchable")
	}
}

func TestClearNewResetsDownloadedBytes(t *testing.T) {
	b := New("t1", "/a/b", false, PriorityNormal, nil, 0)
	b.AddDownloadedBytes(100)
	b.ClearNew()
	if b.HasFlag(FlagNew) {
		t.Fatal("ClearNew must unset FlagNew")
	}
	if b.DownloadedBytes() != 0 {
		t.Fatalf("ClearNew must reset downloaded bytes, got %d", b.DownloadedBytes())
	}
}

func TestAllowAutoSearchRequiresQueuedItemsAndPriority(t *testing.T) {
	b := New("t1", "/a/b", false, PriorityLowest, nil, 0)
	b.ClearNew()
	b.AddQueueItem(Item{Token: "i1", FilePath: "/a/b/i1"})
	if b.AllowAutoSearch() {
		t.Fatal("PAUSED/LOWEST priority must never be searchable")
	}
	b.SetPriority(PriorityNormal)
	if !b.AllowAutoSearch() {
		t.Fatal("expected a non-NEW bundle with queued items at NORMAL+ to be searchable")
	}
}

func TestIsRecentThreshold(t *testing.T) {
	b := New("t1", "/a/b", false, PriorityNormal, nil, 1000)
	if !b.IsRecent(1000 + RecentWindowMs - 1) {
		t.Fatal("expected bundle to still be recent just under the window")
	}
	if b.IsRecent(1000 + RecentWindowMs) {
		t.Fatal("expected bundle to no longer be recent at exactly the window")
	}
}

// Directory bundles share a containing-directory claim across multiple
// items; the registry relies on refDirLocked/unrefDirLocked (via
// AddQueueItem/RemoveQueueItem's boolean return) only flipping on the
// first/last claim for a directory.
func TestDirectoryRefcountingAcrossMultipleItems(t *testing.T) {
	b := New("dir", "/root/dir", false, PriorityNormal, nil, 0)
	b.ClearNew()

	i1 := Item{Token: "i1", FilePath: "/root/dir/sub/i1"}
	i2 := Item{Token: "i2", FilePath: "/root/dir/sub/i2"}

	if newDir := b.AddQueueItem(i1); !newDir {
		t.Fatal("expected the first item in a directory to report a new containing dir")
	}
	if newDir := b.AddQueueItem(i2); newDir {
		t.Fatal("a second item sharing the same directory must not report a new containing dir")
	}

	if removed := b.RemoveQueueItem(i1, false); removed {
		t.Fatal("removing one of two items in a directory must not drop the directory's claim")
	}
	if removed := b.RemoveQueueItem(i2, false); !removed {
		t.Fatal("removing the last item in a directory must drop the directory's claim")
	}
}

// A claim started while an item is queued must survive the queued->finished
// transition without double-counting, and must be released only on the
// final RemoveFinishedItem (spec.md §3: removed only when the item is
// removed outright, not when it merely finishes).
func TestDirectoryClaimSurvivesFinishTransition(t *testing.T) {
	b := New("dir", "/root/dir", false, PriorityNormal, nil, 0)
	b.ClearNew()
	qi := Item{Token: "i1", FilePath: "/root/dir/sub/i1"}

	b.AddQueueItem(qi)
	if removed := b.RemoveQueueItem(qi, true); removed {
		t.Fatal("transitioning to finished must not release the directory claim")
	}
	if newDir := b.AddFinishedItem(qi); newDir {
		t.Fatal("AddFinishedItem must not re-claim a directory already claimed by the same token")
	}
	if removed := b.RemoveFinishedItem(qi); !removed {
		t.Fatal("removing the finished item outright must release the directory claim")
	}
}

func TestIsFinished(t *testing.T) {
	b := New("b", "/a", true, PriorityNormal, nil, 0)
	b.ClearNew()
	if b.IsFinished() {
		t.Fatal("an empty bundle must never report as finished")
	}
	qi := Item{Token: "i1", FilePath: "/a"}
	b.AddQueueItem(qi)
	b.RemoveQueueItem(qi, true)
	b.AddFinishedItem(qi)
	if !b.IsFinished() {
		t.Fatal("expected a bundle with no queued items and at least one finished item to be finished")
	}
}
