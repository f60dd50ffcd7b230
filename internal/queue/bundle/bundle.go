// Package bundle implements the Bundle entity: a unit of download, either
// a single file or a directory tree of files (spec.md §3).
package bundle

import (
	"strings"
	"sync"

	"github.com/example/bundlequeue/internal/pathutil"
)

// Priority is the ordered priority scale from spec.md §3. PAUSED and
// LOWEST are never scheduled for search (spec.md §3 "Priorities strictly
// below LOW are never scheduled").
type Priority int

const (
	PriorityPaused Priority = iota
	PriorityLowest
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
	// PriorityLast is the sentinel used to size the fixed priority-band
	// array (spec.md §9 "Priority bands as an array").
	PriorityLast
)

func (p Priority) String() string {
	switch p {
	case PriorityPaused:
		return "PAUSED"
	case PriorityLowest:
		return "LOWEST"
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityHighest:
		return "HIGHEST"
	default:
		return "UNKNOWN"
	}
}

// Flag is a bitset of bundle lifecycle flags.
type Flag uint32

const (
	// FlagNew marks a bundle that has not been added to the registry yet.
	FlagNew Flag = 1 << iota
)

// RecentWindowMs is how long a bundle stays on the faster "recent" search
// cadence after creation (spec.md's "Recent bundle" glossary entry).
const RecentWindowMs int64 = 10 * 60 * 1000

// Item is a single queued or finished file belonging to a bundle.
// FilePath is used to register/unregister secondary bundle_dirs entries
// for directory bundles (spec.md §3).
type Item struct {
	Token    string
	FilePath string
}

// PersistenceBackend is the opaque descriptor store the registry delegates
// to (spec.md §6 "Bundle persistence (collaborator)"). The registry and
// the bundle never interpret the descriptor format themselves.
type PersistenceBackend interface {
	Save(b *Bundle) error
	Delete(token string) error
}

// Bundle is guarded by its own mutex; the registry takes its own lock for
// bundles/bundleDirs and additionally locks the bundle only for field
// access, never while holding a view lock (spec.md §5).
type Bundle struct {
	mu sync.RWMutex

	token        string
	target       string
	isFileBundle bool
	priority     Priority
	flags        Flag
	downloaded   int64
	queued       map[string]Item // keyed by item token
	finished     map[string]Item
	dirRefs      map[string]int    // containing-dir -> live item count, directory bundles only
	dirClaims    map[string]string // item token -> dir it has claimed a ref on
	dirty        bool
	createdAtMs  int64

	backend PersistenceBackend
}

// New constructs a NEW bundle (spec.md §3: "While NEW it is not in the
// registry"). nowMs is the clock collaborator's NowMs() at creation time,
// used later by IsRecent.
func New(token, target string, isFileBundle bool, priority Priority, backend PersistenceBackend, nowMs int64) *Bundle {
	return &Bundle{
		token:        token,
		target:       target,
		isFileBundle: isFileBundle,
		priority:     priority,
		flags:        FlagNew,
		queued:       make(map[string]Item),
		finished:     make(map[string]Item),
		dirRefs:      make(map[string]int),
		dirClaims:    make(map[string]string),
		createdAtMs:  nowMs,
		backend:      backend,
	}
}

func (b *Bundle) Token() string { b.mu.RLock(); defer b.mu.RUnlock(); return b.token }

// ID satisfies view.Item so *Bundle can be used as a view.Controller item type.
func (b *Bundle) ID() string { return b.Token() }

func (b *Bundle) Target() string { b.mu.RLock(); defer b.mu.RUnlock(); return b.target }

// SetTarget is only meant to be called by registry.MoveBundle, which is
// responsible for keeping bundleDirs consistent with the new value.
func (b *Bundle) SetTarget(t string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = t
	b.dirty = true
}

func (b *Bundle) IsFileBundle() bool { b.mu.RLock(); defer b.mu.RUnlock(); return b.isFileBundle }

func (b *Bundle) Priority() Priority { b.mu.RLock(); defer b.mu.RUnlock(); return b.priority }

func (b *Bundle) SetPriority(p Priority) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.priority = p
	b.dirty = true
}

func (b *Bundle) HasFlag(f Flag) bool { b.mu.RLock(); defer b.mu.RUnlock(); return b.flags&f != 0 }

func (b *Bundle) unsetFlag(f Flag) { b.flags &^= f }

// ClearNew clears FLAG_NEW and resets the downloaded-bytes counter, the two
// side effects AddBundle performs before inserting the bundle (spec.md §4.1).
func (b *Bundle) ClearNew() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsetFlag(FlagNew)
	b.downloaded = 0
}

func (b *Bundle) DownloadedBytes() int64 { b.mu.RLock(); defer b.mu.RUnlock(); return b.downloaded }

func (b *Bundle) AddDownloadedBytes(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.downloaded += n
}

// IsRecent reports whether the bundle is still within RecentWindowMs of its
// creation time (spec.md glossary "Recent bundle").
func (b *Bundle) IsRecent(nowMs int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return nowMs-b.createdAtMs < RecentWindowMs
}

// AllowAutoSearch reports eligibility for a network search: priority at
// least LOW (PAUSED and LOWEST are excluded), has at least one unfinished
// queued item, and not still NEW
// (spec.md glossary "Allow auto-search").
func (b *Bundle) AllowAutoSearch() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.priority < PriorityLow {
		return false
	}
	if b.flags&FlagNew != 0 {
		return false
	}
	return len(b.queued) > 0
}

func (b *Bundle) GetDirty() bool { b.mu.RLock(); defer b.mu.RUnlock(); return b.dirty }

func containingDir(filePath string) string {
	p := strings.TrimRight(pathutil.Normalize(filePath), "/")
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return p
	}
	return p[:idx]
}

// refDirLocked claims a ref on qi's containing directory on behalf of its
// token, unless that token already holds one (the queued->finished
// transition keeps the same claim rather than double-counting). Reports
// whether this is the directory's first live claim.
func (b *Bundle) refDirLocked(qi Item) bool {
	if b.isFileBundle {
		return false
	}
	if _, already := b.dirClaims[qi.Token]; already {
		return false
	}
	dir := containingDir(qi.FilePath)
	b.dirClaims[qi.Token] = dir
	b.dirRefs[dir]++
	return b.dirRefs[dir] == 1
}

// unrefDirLocked releases token's claim, if any, and reports whether the
// directory's ref count just dropped to zero.
func (b *Bundle) unrefDirLocked(token string) bool {
	if b.isFileBundle {
		return false
	}
	dir, ok := b.dirClaims[token]
	if !ok {
		return false
	}
	delete(b.dirClaims, token)
	n := b.dirRefs[dir] - 1
	if n <= 0 {
		delete(b.dirRefs, dir)
		return true
	}
	b.dirRefs[dir] = n
	return false
}

// AddQueueItem adds qi to the queued set. It returns true when this is a
// newly-seen containing directory for the item's file path, signalling the
// caller (registry.AddBundleItem) to register a secondary bundleDirs entry
// (spec.md §4.1 "add_bundle_item").
func (b *Bundle) AddQueueItem(qi Item) (newContainingDir bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.queued[qi.Token]; exists {
		return false
	}
	b.queued[qi.Token] = qi
	b.dirty = true
	return b.refDirLocked(qi)
}

// RemoveQueueItem removes qi from the queued set. finished indicates the
// item is transitioning to the finished set rather than being discarded;
// per spec.md §3 the secondary path-index entry is removed only when the
// item is removed outright, not when it merely finishes (the directory
// claim carries over to the finished set via AddFinishedItem).
func (b *Bundle) RemoveQueueItem(qi Item, finished bool) (removedContainingDir bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.queued[qi.Token]; !exists {
		return false
	}
	delete(b.queued, qi.Token)
	b.dirty = true
	if finished {
		return false
	}
	return b.unrefDirLocked(qi.Token)
}

func (b *Bundle) AddFinishedItem(qi Item) (newContainingDir bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.finished[qi.Token]; exists {
		return false
	}
	b.finished[qi.Token] = qi
	b.dirty = true
	return b.refDirLocked(qi)
}

func (b *Bundle) RemoveFinishedItem(qi Item) (removedContainingDir bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.finished[qi.Token]; !exists {
		return false
	}
	delete(b.finished, qi.Token)
	b.dirty = true
	return b.unrefDirLocked(qi.Token)
}

// QueuedItems and FinishedItems return snapshots; the registry asserts both
// are empty before RemoveBundle (spec.md §4.1).
func (b *Bundle) QueuedItems() []Item {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Item, 0, len(b.queued))
	for _, it := range b.queued {
		out = append(out, it)
	}
	return out
}

func (b *Bundle) FinishedItems() []Item {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Item, 0, len(b.finished))
	for _, it := range b.finished {
		out = append(out, it)
	}
	return out
}

func (b *Bundle) FinishedCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.finished)
}

// IsFinished reports whether every queued item has finished and at least
// one file has ever been tracked; an empty bundle is never "finished".
func (b *Bundle) IsFinished() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.queued) == 0 && len(b.finished) > 0
}

// DiskUse returns the bytes this bundle contributes to disk-usage
// accounting. countAll mirrors GetDiskInfo's temp-directory special case
// (spec.md §4.1 "get_disk_info"): when true it returns the downloaded byte
// count, and when false half of it. The bundle tracks neither item sizes
// nor which part of its data sits on the temp volume.
func (b *Bundle) DiskUse(countAll bool) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if countAll {
		return b.downloaded
	}
	return b.downloaded / 2
}

// Save writes the bundle's descriptor through its backend and clears the
// dirty bit on success. It does not check the dirty bit itself; SaveQueue
// decides which bundles to save. Errors are the caller's
// (registry.SaveQueue's) responsibility to swallow per spec.md §4.1.
func (b *Bundle) Save() error {
	if b.backend == nil {
		return nil
	}
	if err := b.backend.Save(b); err != nil {
		return err
	}
	b.mu.Lock()
	b.dirty = false
	b.mu.Unlock()
	return nil
}

// DeleteDescriptorFile unlinks the on-disk descriptor (spec.md §4.1
// "asks the bundle to delete its on-disk descriptor").
func (b *Bundle) DeleteDescriptorFile() error {
	if b.backend == nil {
		return nil
	}
	return b.backend.Delete(b.token)
}
