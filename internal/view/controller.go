// Package view implements the generic, filterable, sortable, windowed
// projection over a live item collection used to stream incremental list
// updates over a session transport (spec.md §3 "View controller state",
// §4.3 "View controller").
package view

import (
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/example/bundlequeue/internal/filter"
)

// ErrInvalidArgument covers a negative range_start, an unknown sort
// property, or a malformed filter request (spec.md §7).
var ErrInvalidArgument = errors.New("view: invalid argument")

// ErrInactiveView is returned by Reset on a controller that is not active —
// resolved per spec.md §9's first Open Question as "400 plus an error
// string". Filter and item operations do not check activation.
var ErrInactiveView = errors.New("view: inactive")

// ErrNotFound covers an unknown filter id (spec.md §7).
var ErrNotFound = errors.New("view: not found")

// Item is the identity contract every view item type must satisfy
// (SPEC_FULL.md §3 addition).
type Item interface {
	ID() string
}

// Handler supplies the type-specific behaviour the generic controller
// needs: property access for filtering, serialization, and sort ordering.
// It is implemented once per item type (e.g. for *bundle.Bundle).
type Handler[T Item] interface {
	Properties(item T) filter.PropertyValues
	// Serialize renders item's properties. When only is non-nil, just that
	// subset is rendered (spec.md §4.3 step 7:
	// "items present but in the updated set serialize only their
	// updated-property subset").
	Serialize(item T, only map[string]bool) map[string]any
	// Less orders a before b by property (spec.md §4.3 "Sort methods are
	// numeric, lexicographic-case-insensitive, or custom").
	Less(a, b T, property string, ascending bool) bool
	ValidSortProperty(property string) bool
}

// taskType is the merge lattice ordinal: UPDATE < ADD < REMOVE (spec.md §9
// "View task merge ordering... do not reorder").
type taskType int

const (
	taskUpdate taskType = iota
	taskAdd
	taskRemove
)

type taskEntry[T Item] struct {
	typ     taskType
	item    T
	updated map[string]bool
}

// mergeTask implements spec.md §4.3's "tasks merges per-item" rule over the
// UPDATE < ADD < REMOVE lattice: a later event of a higher type replaces the
// existing type, a later event of a lower type leaves it in place, and an
// UPDATE merged into an existing ADD or UPDATE unions its changed-property
// set into that task. A REMOVE therefore survives a later ADD or UPDATE.
func mergeTask[T Item](existing *taskEntry[T], newTyp taskType, item T, updated map[string]bool) *taskEntry[T] {
	if existing == nil {
		return &taskEntry[T]{typ: newTyp, item: item, updated: updated}
	}
	existing.item = item
	if existing.updated == nil && len(updated) > 0 {
		existing.updated = make(map[string]bool, len(updated))
	}
	switch {
	case newTyp > existing.typ:
		existing.typ = newTyp
	case newTyp == existing.typ:
		if newTyp == taskUpdate {
			unionInto(existing.updated, updated)
		}
	default:
		if existing.typ == taskAdd && newTyp == taskUpdate {
			unionInto(existing.updated, updated)
		}
	}
	return existing
}

func unionInto(dst, src map[string]bool) {
	for k := range src {
		dst[k] = true
	}
}

// Settings is the per-view tick configuration (spec.md §3).
type Settings struct {
	SortProperty   string
	SortAscending  bool
	RangeStart     int
	MaxCount       int
	Paused         bool
}

// Session is the transport a controller pushes `<view>_updated` events to
// (spec.md §6 "View transport"). wsapi binds this to a websocket
// connection (SPEC_FULL.md §4.8).
type Session interface {
	Send(event string, payload map[string]any) error
}

// Controller is a generic windowed view over items of type T, guarded by
// its own RWMutex (spec.md §5 "Per-view lock"). Zero value is not usable;
// use New.
type Controller[T Item] struct {
	mu sync.RWMutex

	name    string
	handler Handler[T]
	session Session
	log     *zap.Logger

	active bool

	allItems      map[string]T
	matchingItems []T
	currentView   []T
	updatedProps  map[string]map[string]bool // item id -> updated props, current tick

	filters    map[int]*filter.Filter
	nextFilter int

	tasks map[string]*taskEntry[T]

	settings     Settings
	prevSettings Settings
	listRebuilt  bool
	filtersDirty bool

	prevMatchingCount int
	prevAllCount      int
}

func New[T Item](name string, handler Handler[T], session Session, log *zap.Logger) *Controller[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller[T]{
		name:      name,
		handler:   handler,
		session:   session,
		log:       log,
		allItems:  make(map[string]T),
		filters:   make(map[int]*filter.Filter),
		tasks:     make(map[string]*taskEntry[T]),
		updatedProps: make(map[string]map[string]bool),
	}
}

// SetSession (re)binds the transport a controller's tick payloads are sent
// to — used when a client (re)subscribes over a fresh connection.
func (c *Controller[T]) SetSession(session Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

func (c *Controller[T]) IsActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// ApplySettings activates the view on first call, validates and updates
// settings (spec.md §4.3 "POST <view>/settings"). seed supplies the
// current full item collection, materialised only on activation.
func (c *Controller[T]) ApplySettings(s Settings, seed func() []T) error {
	if s.RangeStart < 0 {
		return ErrInvalidArgument
	}
	if s.SortProperty != "" && !c.handler.ValidSortProperty(s.SortProperty) {
		return ErrInvalidArgument
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	wasActive := c.active
	c.settings = s
	if !wasActive {
		c.active = true
		c.allItems = make(map[string]T)
		for _, item := range seed() {
			c.allItems[item.ID()] = item
		}
		c.rebuildMatchingLocked()
		c.listRebuilt = true
	}
	return nil
}

// Reset deactivates the view and clears all state (spec.md §4.3 "DELETE
// <view>").
func (c *Controller[T]) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return ErrInactiveView
	}
	c.active = false
	c.allItems = make(map[string]T)
	c.matchingItems = nil
	c.currentView = nil
	c.filters = make(map[int]*filter.Filter)
	c.nextFilter = 0
	c.tasks = make(map[string]*taskEntry[T])
	c.settings = Settings{}
	c.prevSettings = Settings{}
	c.prevMatchingCount = 0
	c.prevAllCount = 0
	return nil
}

// AddFilter adds a filter and returns its id (spec.md §4.3 "POST
// <view>/filter").
func (c *Controller[T]) AddFilter(propertyID string, stringMethod filter.StringMethod, numericMethod filter.NumericMethod, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextFilter
	c.nextFilter++
	f, err := filter.New(id, propertyID, stringMethod, numericMethod, pattern)
	if err != nil {
		return 0, ErrInvalidArgument
	}
	c.filters[id] = f
	c.listRebuilt = true
	c.filtersDirty = true
	return id, nil
}

// UpdateFilter replaces an existing filter (spec.md §4.3 "PUT
// <view>/filter/{id}").
func (c *Controller[T]) UpdateFilter(id int, propertyID string, stringMethod filter.StringMethod, numericMethod filter.NumericMethod, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.filters[id]; !ok {
		return ErrNotFound
	}
	f, err := filter.New(id, propertyID, stringMethod, numericMethod, pattern)
	if err != nil {
		return ErrInvalidArgument
	}
	c.filters[id] = f
	c.listRebuilt = true
	c.filtersDirty = true
	return nil
}

// RemoveFilter removes a filter (spec.md §4.3 "DELETE <view>/filter/{id}").
func (c *Controller[T]) RemoveFilter(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.filters[id]; !ok {
		return ErrNotFound
	}
	delete(c.filters, id)
	c.listRebuilt = true
	c.filtersDirty = true
	return nil
}

// Items returns serialized matching_items in [start, end) at request time
// (spec.md §4.3 "GET <view>/items/{start}/{end}").
func (c *Controller[T]) Items(start, end int) ([]map[string]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if start < 0 || end < start {
		return nil, ErrInvalidArgument
	}
	if start > len(c.matchingItems) {
		start = len(c.matchingItems)
	}
	if end > len(c.matchingItems) {
		end = len(c.matchingItems)
	}
	out := make([]map[string]any, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, c.handler.Serialize(c.matchingItems[i], nil))
	}
	return out, nil
}

// OnItemAdded/Removed/Updated enqueue into tasks only when active (spec.md
// §4.3 "Event ingress").
func (c *Controller[T]) OnItemAdded(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	id := item.ID()
	c.tasks[id] = mergeTask(c.tasks[id], taskAdd, item, nil)
}

func (c *Controller[T]) OnItemRemoved(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	id := item.ID()
	c.tasks[id] = mergeTask(c.tasks[id], taskRemove, item, nil)
}

func (c *Controller[T]) OnItemUpdated(item T, changedProperties []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	id := item.ID()
	updated := make(map[string]bool, len(changedProperties))
	for _, p := range changedProperties {
		updated[p] = true
	}
	c.tasks[id] = mergeTask(c.tasks[id], taskUpdate, item, updated)
}

func (c *Controller[T]) matchesLocked(item T) bool {
	if len(c.filters) == 0 {
		return true
	}
	fs := make([]*filter.Filter, 0, len(c.filters))
	for _, f := range c.filters {
		fs = append(fs, f)
	}
	return filter.Match(fs, c.handler.Properties(item))
}

func (c *Controller[T]) rebuildMatchingLocked() {
	c.matchingItems = c.matchingItems[:0]
	for _, item := range c.allItems {
		if c.matchesLocked(item) {
			c.matchingItems = append(c.matchingItems, item)
		}
	}
	c.sortMatchingLocked()
}

func (c *Controller[T]) sortMatchingLocked() {
	prop, asc := c.settings.SortProperty, c.settings.SortAscending
	if prop == "" {
		return
	}
	sort.SliceStable(c.matchingItems, func(i, j int) bool {
		return c.handler.Less(c.matchingItems[i], c.matchingItems[j], prop, asc)
	})
}

func (c *Controller[T]) insertSortedLocked(item T) int {
	prop, asc := c.settings.SortProperty, c.settings.SortAscending
	n := len(c.matchingItems)
	if prop == "" {
		c.matchingItems = append(c.matchingItems, item)
		return n
	}
	idx := sort.Search(n, func(i int) bool {
		return !c.handler.Less(c.matchingItems[i], item, prop, asc)
	})
	c.matchingItems = append(c.matchingItems, item)
	copy(c.matchingItems[idx+1:], c.matchingItems[idx:n])
	c.matchingItems[idx] = item
	return idx
}

func (c *Controller[T]) findMatchingPosLocked(id string) (int, bool) {
	for i, item := range c.matchingItems {
		if item.ID() == id {
			return i, true
		}
	}
	return -1, false
}

func (c *Controller[T]) removeMatchingLocked(id string) (int, bool) {
	pos, ok := c.findMatchingPosLocked(id)
	if !ok {
		return -1, false
	}
	c.matchingItems = append(c.matchingItems[:pos], c.matchingItems[pos+1:]...)
	return pos, true
}

// Tick runs the nine-step algorithm from spec.md §4.3 and returns whether a
// payload was emitted (for tests; production callers ignore the bool and
// rely on Send being called internally).
func (c *Controller[T]) Tick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || c.settings.Paused {
		return false
	}

	// Step 1: atomically take the pending task map and updated-property set.
	tasks := c.tasks
	c.tasks = make(map[string]*taskEntry[T])

	settingsChanged := c.settings != c.prevSettings
	// Step 2.
	if len(tasks) == 0 && !settingsChanged && !c.listRebuilt {
		return false
	}

	// Step 3: snapshot settings.
	settings := c.settings

	// Step 4: sort decision.
	resort := settingsChanged || c.listRebuilt
	if !resort {
		for _, te := range tasks {
			if te.typ == taskUpdate && te.updated[settings.SortProperty] {
				resort = true
				break
			}
		}
	}
	c.listRebuilt = false
	filtersDirty := c.filtersDirty
	c.filtersDirty = false

	rangeShift := 0
	c.updatedProps = make(map[string]map[string]bool)

	// Step 5: apply tasks in iteration order. When a filter was added,
	// replaced, or removed since the last tick, matching_items is rebuilt
	// wholesale from all_items below instead of patched incrementally here,
	// since the old per-item matching decisions were made under filters
	// that no longer apply.
	for id, te := range tasks {
		switch te.typ {
		case taskAdd:
			c.allItems[id] = te.item
			if !filtersDirty && c.matchesLocked(te.item) {
				pos := c.insertSortedLocked(te.item)
				if pos < settings.RangeStart {
					rangeShift++
				}
			}
		case taskRemove:
			delete(c.allItems, id)
			if !filtersDirty {
				if pos, ok := c.removeMatchingLocked(id); ok {
					if pos < settings.RangeStart {
						rangeShift--
					}
				}
			}
		case taskUpdate:
			c.allItems[id] = te.item
			if filtersDirty {
				continue
			}
			pos, wasMatching := c.findMatchingPosLocked(id)
			nowMatches := c.matchesLocked(te.item)
			switch {
			case wasMatching && !nowMatches:
				c.matchingItems = append(c.matchingItems[:pos], c.matchingItems[pos+1:]...)
				if pos < settings.RangeStart {
					rangeShift--
				}
			case !wasMatching && nowMatches:
				newPos := c.insertSortedLocked(te.item)
				if newPos < settings.RangeStart {
					rangeShift++
				}
			case wasMatching && nowMatches:
				c.matchingItems[pos] = te.item
				c.updatedProps[id] = te.updated
			}
		}
	}

	if filtersDirty {
		// Re-filter from scratch: membership may have changed for every
		// item, not just the ones touched by this tick's tasks, so
		// range_start shift tracking does not apply here.
		c.rebuildMatchingLocked()
	} else {
		settings.RangeStart += rangeShift
		c.settings.RangeStart = settings.RangeStart

		// Step 4 (continued): perform the resort once tasks are applied.
		if resort {
			c.sortMatchingLocked()
		}
	}

	// Step 6: window.
	if settings.RangeStart >= len(c.matchingItems) {
		settings.RangeStart = 0
		c.settings.RangeStart = 0
	}
	end := settings.RangeStart + settings.MaxCount
	if end > len(c.matchingItems) || settings.MaxCount <= 0 {
		end = len(c.matchingItems)
	}
	newView := append([]T{}, c.matchingItems[settings.RangeStart:end]...)

	// Step 7: diff against current_view_items.
	oldByID := make(map[string]int, len(c.currentView))
	for i, item := range c.currentView {
		oldByID[item.ID()] = i
	}
	items := make([]map[string]any, 0, len(newView))
	for pos, item := range newView {
		id := item.ID()
		entry := map[string]any{"id": id, "pos": pos}
		if _, wasPresent := oldByID[id]; !wasPresent {
			for k, v := range c.handler.Serialize(item, nil) {
				entry[k] = v
			}
		} else if upd, ok := c.updatedProps[id]; ok && len(upd) > 0 {
			for k, v := range c.handler.Serialize(item, upd) {
				entry[k] = v
			}
		}
		items = append(items, entry)
	}

	// Step 8: counts and range_offset, only if changed.
	payload := map[string]any{"items": items}
	if len(c.matchingItems) != c.prevMatchingCount {
		payload["matching_items"] = len(c.matchingItems)
	}
	if len(c.allItems) != c.prevAllCount {
		payload["total_items"] = len(c.allItems)
	}
	if rangeShift != 0 {
		payload["range_offset"] = rangeShift
	}
	payload["range_start"] = settings.RangeStart

	c.prevMatchingCount = len(c.matchingItems)
	c.prevAllCount = len(c.allItems)
	c.prevSettings = settings

	// Step 9: replace current_view_items; send.
	c.currentView = newView
	if c.session != nil {
		if err := c.session.Send(c.name+"_updated", payload); err != nil {
			c.log.Warn("view send failed", zap.String("view", c.name), zap.Error(err))
		}
	}
	return true
}
