// Package scheduler implements the auto-search scheduler: two cooperating
// queues (priority-banded and "recent") plus the weighted-random selection
// algorithm that decides which bundle to search the network for next
// (spec.md §4.2).
package scheduler

import (
	"sync"

	"go.uber.org/zap"

	"github.com/example/bundlequeue/internal/clock"
	"github.com/example/bundlequeue/internal/queue/bundle"
	"github.com/example/bundlequeue/internal/rng"
)

// SearchTimeSource is the settings collaborator (spec.md §6): SEARCH_TIME
// in minutes, >= 1.
type SearchTimeSource interface {
	SearchTimeMinutes() int
}

// Scheduler holds the priority bands and the recent queue (spec.md §3
// "Search scheduler state"). Use New; the zero value is not usable.
type Scheduler struct {
	mu sync.RWMutex

	// prioQueues is indexed directly by bundle.Priority; only indices
	// [bundle.PriorityLow, bundle.PriorityHighest] are ever populated
	// (spec.md §9 "Priority bands as an array").
	prioQueues  [bundle.PriorityLast][]*bundle.Bundle
	recentQueue []*bundle.Bundle

	nextSearchDueMs       int64
	nextRecentSearchDueMs int64

	sampler    rng.Sampler
	clock      clock.Clock
	searchTime SearchTimeSource
	log        *zap.Logger
}

func New(sampler rng.Sampler, clk clock.Clock, searchTime SearchTimeSource, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		sampler:    sampler,
		clock:      clk,
		searchTime: searchTime,
		log:        log,
	}
}

// AddSearchPrio inserts b into the recent queue or its priority band,
// unless its priority is below LOW (spec.md §4.1 "add_search_prio").
func (s *Scheduler) AddSearchPrio(b *bundle.Bundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addSearchPrioLocked(b)
}

func (s *Scheduler) addSearchPrioLocked(b *bundle.Bundle) {
	if b.Priority() < bundle.PriorityLow {
		return
	}
	if b.IsRecent(s.clock.NowMs()) {
		s.recentQueue = append(s.recentQueue, b)
		return
	}
	s.prioQueues[b.Priority()] = append(s.prioQueues[b.Priority()], b)
}

// RemoveSearchPrio removes b from whichever queue currently holds it
// (spec.md §4.1 "remove_search_prio").
func (s *Scheduler) RemoveSearchPrio(b *bundle.Bundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeFromAnyLocked(b)
}

// OnPriorityChanged re-homes b after its priority (or recency) changed:
// remove from the old queue, re-insert into the new one (spec.md §3
// "On priority change, the bundle is removed from its old queue and
// re-inserted").
func (s *Scheduler) OnPriorityChanged(b *bundle.Bundle) {
	s.mu.Lock()
	s.removeFromAnyLocked(b)
	s.addSearchPrioLocked(b)
	s.mu.Unlock()
}

// removeFromAnyLocked removes b from whichever band or the recent queue
// currently holds it. It scans both because by the time this is called the
// bundle's priority may already have changed from whatever queue it is
// actually sitting in.
func (s *Scheduler) removeFromAnyLocked(b *bundle.Bundle) {
	if idx := indexOf(s.recentQueue, b); idx >= 0 {
		s.recentQueue = removeAt(s.recentQueue, idx)
		return
	}
	for p := range s.prioQueues {
		if idx := indexOf(s.prioQueues[p], b); idx >= 0 {
			s.prioQueues[p] = removeAt(s.prioQueues[p], idx)
			return
		}
	}
}

// PickNextSearch returns at most one bundle to search for next (spec.md
// §4.2 contract). It rotates the picked bundle within its queue but does
// not change the due timestamps; only RecalculateSearchTimes sets them.
func (s *Scheduler) PickNextSearch(nowMs int64, force bool) (*bundle.Bundle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if force || nowMs >= s.nextSearchDueMs {
		if b, ok := s.findAutoSearchLocked(); ok {
			return b, true
		}
	}
	if force || nowMs >= s.nextRecentSearchDueMs {
		if b, ok := s.findRecentLocked(); ok {
			return b, true
		}
	}
	return nil, false
}

// findAutoSearchLocked implements spec.md §4.2 "find_auto_search()".
func (s *Scheduler) findAutoSearchLocked() (*bundle.Bundle, bool) {
	weights := make([]int, bundle.PriorityLast-bundle.PriorityLow)
	total := 0
	for p := bundle.PriorityLow; p < bundle.PriorityLast; p++ {
		count := countSearchable(s.prioQueues[p])
		w := (int(p) - 1) * count
		weights[p-bundle.PriorityLow] = w
		total += w
	}
	if total <= 0 {
		return nil, false
	}

	idx, ok := s.sampler.Sample(weights)
	if !ok {
		return nil, false
	}
	// idx selects a weight-vector slot; the corresponding priority band is
	// LOW+idx (spec.md step 3's "+2" is already reflected here since
	// bundle.PriorityLow itself equals 2, having skipped PAUSED/LOWEST).
	p := bundle.PriorityLow + bundle.Priority(idx)
	band := s.prioQueues[p]
	for i, b := range band {
		if b.AllowAutoSearch() {
			// move to the back of its band
			s.prioQueues[p] = append(append(append([]*bundle.Bundle{}, band[:i]...), band[i+1:]...), b)
			return b, true
		}
	}
	// Bands are chosen by weighted sample, not iterated; an unsearchable
	// band yields no result rather than falling through to another band
	// (spec.md §4.2 "Edge cases", §9 second Open Question).
	return nil, false
}

// findRecentLocked implements spec.md §4.2 "find_recent()" and §8 scenario
// S4: popping the recent queue in order, a bundle that is still within its
// recent window is rotated to the back and skipped without an
// AllowAutoSearch check, so this only ever returns a bundle that has just
// aged out, immediately after moving it to the priority queues.
//
// original_source/BundleQueue.cpp's find_recent() instead calls
// allowAutoSearch() on every popped bundle, including ones still in their
// recent window, and can return a still-recent bundle if it passes that
// check. Scenario S4 only exercises the aged-out path, so this narrower
// reading is what's implemented here; a bundle kept recent by this
// scheduler is never offered by this method before it ages out, even if
// AllowAutoSearch() would have allowed it.
func (s *Scheduler) findRecentLocked() (*bundle.Bundle, bool) {
	n := len(s.recentQueue)
	for count := 0; count < n; count++ {
		b := s.recentQueue[0]
		s.recentQueue = s.recentQueue[1:]

		if b.IsRecent(s.clock.NowMs()) {
			s.recentQueue = append(s.recentQueue, b)
			continue
		}

		s.addSearchPrioLocked(b)
		if b.AllowAutoSearch() {
			return b, true
		}
	}
	return nil, false
}

// RecalculateSearchTimes implements spec.md §4.2
// "recalculate_search_times(is_recent, is_prio_change)".
func (s *Scheduler) RecalculateSearchTimes(isRecent, isPrioChange bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.NowMs()
	if !isRecent {
		n := 0
		for p := bundle.PriorityLow; p < bundle.PriorityLast; p++ {
			n += countSearchable(s.prioQueues[p])
		}

		searchTime := 1
		if s.searchTime != nil {
			searchTime = s.searchTime.SearchTimeMinutes()
		}
		if searchTime < 1 {
			searchTime = 1
		}

		intervalMin := searchTime
		if n > 0 {
			intervalMin = max(60/n, searchTime)
		}
		candidate := now + int64(intervalMin)*60*1000

		if s.nextSearchDueMs > 0 && isPrioChange {
			s.nextSearchDueMs = min64(s.nextSearchDueMs, candidate)
		} else {
			s.nextSearchDueMs = candidate
		}
		return s.nextSearchDueMs
	}

	intervalMs := s.recentIntervalMsLocked()
	candidate := now + intervalMs
	if s.nextRecentSearchDueMs > 0 && isPrioChange {
		s.nextRecentSearchDueMs = min64(s.nextRecentSearchDueMs, candidate)
	} else {
		s.nextRecentSearchDueMs = candidate
	}
	return s.nextRecentSearchDueMs
}

func (s *Scheduler) recentIntervalMsLocked() int64 {
	n := countSearchable(s.recentQueue)
	switch n {
	case 1:
		return 15 * 60 * 1000
	case 2:
		return 8 * 60 * 1000
	default:
		return 5 * 60 * 1000
	}
}

// NextSearchDueMs and NextRecentSearchDueMs expose the current due
// timestamps, mainly for tests and diagnostics.
func (s *Scheduler) NextSearchDueMs() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSearchDueMs
}

func (s *Scheduler) NextRecentSearchDueMs() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextRecentSearchDueMs
}

func countSearchable(bs []*bundle.Bundle) int {
	n := 0
	for _, b := range bs {
		if b.AllowAutoSearch() {
			n++
		}
	}
	return n
}

func indexOf(bs []*bundle.Bundle, target *bundle.Bundle) int {
	for i, b := range bs {
		if b == target {
			return i
		}
	}
	return -1
}

func removeAt(bs []*bundle.Bundle, idx int) []*bundle.Bundle {
	return append(bs[:idx], bs[idx+1:]...)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
