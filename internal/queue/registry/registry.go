// Package registry implements the bundle registry: the authoritative
// in-memory index of all non-completed bundles, keyed both by token and by
// last path segment (spec.md §3, §4.1).
package registry

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/example/bundlequeue/internal/pathutil"
	"github.com/example/bundlequeue/internal/queue/bundle"
	"github.com/example/bundlequeue/internal/queue/scheduler"
)

// ErrNotFound is returned when a lookup by token finds nothing (spec.md §7).
var ErrNotFound = errors.New("registry: bundle not found")

// dirEntry is one bundle_dirs value: a full path plus the bundle that
// registered it, either the bundle's own target or an item's containing
// directory (spec.md §3).
type dirEntry struct {
	fullPath string
	bundle   *bundle.Bundle
}

// Registry is guarded by a single RWMutex covering bundles and bundleDirs
// (spec.md §5 "Registry lock"). It never locks a view while holding its own
// lock, and never calls back into a view.
type Registry struct {
	mu sync.RWMutex

	bundles    map[string]*bundle.Bundle
	bundleDirs map[string][]dirEntry // key: lower-cased last path segment

	scheduler *scheduler.Scheduler
	log       *zap.Logger
}

func New(sched *scheduler.Scheduler, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		bundles:    make(map[string]*bundle.Bundle),
		bundleDirs: make(map[string][]dirEntry),
		scheduler:  sched,
		log:        log,
	}
}

func dirKey(path string) string {
	return strings.ToLower(pathutil.LastSegment(path))
}

func (r *Registry) registerDirLocked(path string, b *bundle.Bundle) {
	key := dirKey(path)
	entries := r.bundleDirs[key]
	for _, e := range entries {
		if e.bundle == b && strings.EqualFold(e.fullPath, path) {
			return
		}
	}
	r.bundleDirs[key] = append(entries, dirEntry{fullPath: path, bundle: b})
}

func (r *Registry) unregisterDirLocked(path string, b *bundle.Bundle) {
	key := dirKey(path)
	entries := r.bundleDirs[key]
	for i, e := range entries {
		if e.bundle == b && strings.EqualFold(e.fullPath, path) {
			r.bundleDirs[key] = append(entries[:i], entries[i+1:]...)
			if len(r.bundleDirs[key]) == 0 {
				delete(r.bundleDirs, key)
			}
			return
		}
	}
}

// AddBundle clears NEW, resets the downloaded counter, inserts the bundle
// into the scheduler, and binds it by token (spec.md §4.1 "add_bundle").
func (r *Registry) AddBundle(b *bundle.Bundle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b.ClearNew()
	r.bundles[b.Token()] = b
	if !b.IsFileBundle() {
		r.registerDirLocked(b.Target(), b)
	}
	if r.scheduler != nil {
		r.scheduler.AddSearchPrio(b)
	}
}

// RemoveBundle is a no-op for a NEW bundle (it was never added). It asserts
// (via panic in debug builds would be excessive; here we simply refuse)
// that the bundle's item sets are already empty — draining them is the
// caller's responsibility (spec.md §4.1 "remove_bundle").
func (r *Registry) RemoveBundle(b *bundle.Bundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bundles[b.Token()]; !ok {
		return nil
	}
	if len(b.QueuedItems()) != 0 || len(b.FinishedItems()) != 0 {
		return errors.New("registry: cannot remove bundle with non-empty item sets")
	}

	if !b.IsFileBundle() {
		r.unregisterDirLocked(b.Target(), b)
	}
	if r.scheduler != nil {
		r.scheduler.RemoveSearchPrio(b)
	}
	delete(r.bundles, b.Token())
	return b.DeleteDescriptorFile()
}

// MoveBundle atomically swaps the old target for the new one in bundleDirs
// (spec.md §4.1 "move_bundle").
func (r *Registry) MoveBundle(b *bundle.Bundle, newTarget string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := b.Target()
	if !b.IsFileBundle() {
		r.unregisterDirLocked(old, b)
	}
	b.SetTarget(newTarget)
	if !b.IsFileBundle() {
		r.registerDirLocked(newTarget, b)
	}
}

// AddBundleItem registers qi with b, and when that makes qi's containing
// directory newly tracked, adds a secondary bundleDirs entry for it
// (spec.md §4.1 "add_bundle_item").
func (r *Registry) AddBundleItem(b *bundle.Bundle, qi bundle.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.AddQueueItem(qi) {
		r.registerDirLocked(pathutil.Normalize(parentDir(qi.FilePath)), b)
	}
}

// RemoveBundleItem mirrors AddBundleItem; the secondary entry is only
// removed when the item is removed outright, not when it transitions to
// finished (spec.md §3, §4.1).
func (r *Registry) RemoveBundleItem(b *bundle.Bundle, qi bundle.Item, finished bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.RemoveQueueItem(qi, finished) {
		r.unregisterDirLocked(pathutil.Normalize(parentDir(qi.FilePath)), b)
	}
}

func (r *Registry) AddFinishedItem(b *bundle.Bundle, qi bundle.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.AddFinishedItem(qi) {
		r.registerDirLocked(pathutil.Normalize(parentDir(qi.FilePath)), b)
	}
}

func (r *Registry) RemoveFinishedItem(b *bundle.Bundle, qi bundle.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.RemoveFinishedItem(qi) {
		r.unregisterDirLocked(pathutil.Normalize(parentDir(qi.FilePath)), b)
	}
}

func parentDir(filePath string) string {
	p := pathutil.Normalize(filePath)
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return p
	}
	return p[:idx]
}

// FindBundle is an O(1) lookup by token (spec.md §4.1 "find_bundle").
func (r *Registry) FindBundle(token string) (*bundle.Bundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bundles[token]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

// FindRemoteDir implements spec.md §4.1 "find_remote_dir" / §9's CD1-style
// path-matching design note, and §8 scenario S6.
func (r *Registry) FindRemoteDir(remotePath string) (string, *bundle.Bundle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	remotePath = pathutil.Normalize(remotePath)
	last := pathutil.LastSegment(remotePath)
	candidates := r.bundleDirs[strings.ToLower(last)]
	if len(candidates) == 0 {
		return "", nil, false
	}

	if !pathutil.IsSubDirLike(last) {
		c := candidates[0]
		return c.fullPath, c.bundle, true
	}

	remoteSegs := splitSegs(remotePath)
	for _, c := range candidates {
		localSegs := splitSegs(c.fullPath)
		if subDirWalkMatches(remoteSegs, localSegs) {
			return c.fullPath, c.bundle, true
		}
	}
	return "", nil, false
}

// subDirWalkMatches walks both segment lists from the tail backward,
// continuing through pairs of sub-dir-like segments and requiring the
// first pair of non-sub-dir-like segments to match case-insensitively
// (spec.md §9 "stop the walk when any segment matches the sub-dir regex
// (continue), breaks on mismatch, or runs out of segments").
func subDirWalkMatches(remote, local []string) bool {
	i, j := len(remote)-1, len(local)-1
	for i >= 0 && j >= 0 {
		r, l := remote[i], local[j]
		if pathutil.IsSubDirLike(r) && pathutil.IsSubDirLike(l) {
			i--
			j--
			continue
		}
		return strings.EqualFold(r, l)
	}
	return false
}

func splitSegs(p string) []string {
	p = strings.Trim(pathutil.Normalize(p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// GetMergeBundle returns any directory bundle whose target is an ancestor,
// exact match, or descendant of target (spec.md §4.1 "get_merge_bundle",
// §8 property 3 and scenario S1). An ancestor or exact match is preferred
// over a descendant.
func (r *Registry) GetMergeBundle(target string) (*bundle.Bundle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var descendant *bundle.Bundle
	for _, b := range r.bundles {
		if b.IsFileBundle() {
			continue
		}
		t := b.Target()
		if pathutil.IsParentOrExact(t, target) {
			return b, true
		}
		if descendant == nil && pathutil.IsParentOrExact(target, t) {
			descendant = b
		}
	}
	if descendant != nil {
		return descendant, true
	}
	return nil, false
}

// GetSubBundles returns every bundle strictly inside target (spec.md §4.1
// "get_sub_bundles", §8 scenario S1).
func (r *Registry) GetSubBundles(target string) []*bundle.Bundle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*bundle.Bundle
	for _, b := range r.bundles {
		if pathutil.IsSub(b.Target(), target) {
			out = append(out, b)
		}
	}
	return out
}

// MergeOrder returns the directory bundles relevant to merging target, in
// root-first topological order (SPEC_FULL.md §4.1 addition). Directory
// bundles form a strict ancestor/descendant DAG restricted to the subtree
// touched by target, so a cycle is unreachable; an error is only returned
// if the graph library reports one.
func (r *Registry) MergeOrder(target string) ([]*bundle.Bundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var relevant []*bundle.Bundle
	for _, b := range r.bundles {
		if b.IsFileBundle() {
			continue
		}
		t := b.Target()
		if pathutil.IsParentOrExact(t, target) || pathutil.IsParentOrExact(target, t) || pathutil.IsSub(t, target) {
			relevant = append(relevant, b)
		}
	}
	if len(relevant) <= 1 {
		return relevant, nil
	}

	g := simple.NewDirectedGraph()
	nodeOf := make(map[*bundle.Bundle]int64, len(relevant))
	byNode := make(map[int64]*bundle.Bundle, len(relevant))
	for _, b := range relevant {
		n := g.NewNode()
		g.AddNode(n)
		nodeOf[b] = n.ID()
		byNode[n.ID()] = b
	}
	for _, parent := range relevant {
		for _, child := range relevant {
			if parent == child {
				continue
			}
			if pathutil.IsSub(child.Target(), parent.Target()) {
				g.SetEdge(g.NewEdge(g.Node(nodeOf[parent]), g.Node(nodeOf[child])))
			}
		}
	}

	sorted, err := topo.Sort(g)
	if err != nil {
		return nil, err
	}
	out := make([]*bundle.Bundle, 0, len(sorted))
	for _, n := range sorted {
		out = append(out, byNode[n.ID()])
	}
	return out, nil
}

// GetInfo enumerates bundles that are parents-or-exact of source, or, if
// none, a single sub-folder bundle; and counts finished files inside source
// (spec.md §4.1 "get_info").
func (r *Registry) GetInfo(source string) (bundles []*bundle.Bundle, finishedFileCount int, fileBundleCount int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.bundles {
		if pathutil.IsParentOrExact(b.Target(), source) {
			bundles = append(bundles, b)
		}
	}
	if len(bundles) == 0 {
		for _, b := range r.bundles {
			if pathutil.IsSub(b.Target(), source) {
				bundles = append(bundles, b)
				break
			}
		}
	}

	for _, b := range bundles {
		if b.IsFileBundle() {
			fileBundleCount++
		}
		for _, qi := range b.FinishedItems() {
			if pathutil.IsParentOrExact(source, qi.FilePath) {
				finishedFileCount++
			}
		}
	}
	return bundles, finishedFileCount, fileBundleCount
}

// GetDiskInfo sums each bundle's DiskUse per mount point (spec.md §4.1
// "get_disk_info"); the figures come from downloaded byte counts, not from
// queued item sizes. hasTargetDrivePlaceholder mirrors
// settings.Config.HasTargetDrivePlaceholder(): when false, a single shared
// temp directory is configured, so a bundle whose target lives on another
// volume counts DiskUse(true) there, while a bundle on the temp volume
// itself counts DiskUse(false). When true, every bundle counts
// DiskUse(false) regardless of mount.
func (r *Registry) GetDiskInfo(volumes []string, tempDirectory string, hasTargetDrivePlaceholder bool) map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tempMount := pathutil.GetMountPath(tempDirectory, volumes)
	out := make(map[string]int64)
	for _, b := range r.bundles {
		mount := pathutil.GetMountPath(b.Target(), volumes)
		if mount == "" {
			continue
		}
		countAll := !hasTargetDrivePlaceholder && mount != tempMount
		out[mount] += b.DiskUse(countAll)
	}
	return out
}

// SaveQueue persists every non-finished bundle that is dirty or force is
// set, swallowing persistence errors per spec.md §4.1/§7.
func (r *Registry) SaveQueue(force bool) {
	r.mu.RLock()
	bundles := make([]*bundle.Bundle, 0, len(r.bundles))
	for _, b := range r.bundles {
		bundles = append(bundles, b)
	}
	r.mu.RUnlock()

	for _, b := range bundles {
		if b.IsFinished() {
			continue
		}
		if !force && !b.GetDirty() {
			continue
		}
		if err := b.Save(); err != nil {
			r.log.Warn("bundle persistence failed", zap.String("token", b.Token()), zap.Error(err))
		}
	}
}
