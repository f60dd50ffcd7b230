// Package queueview adapts *bundle.Bundle to the generic view.Handler
// contract (spec.md §4.3, SPEC_FULL.md §4.8), so the daemon can expose one
// view.Controller[*bundle.Bundle] named "queue" over the WebSocket/HTTP API.
package queueview

import (
	"strings"

	"github.com/example/bundlequeue/internal/filter"
	"github.com/example/bundlequeue/internal/pathutil"
	"github.com/example/bundlequeue/internal/queue/bundle"
	"github.com/example/bundlequeue/internal/view"
)

// Handler implements view.Handler[*bundle.Bundle].
type Handler struct{}

var sortProperties = map[string]bool{
	"name":       true,
	"target":     true,
	"priority":   true,
	"downloaded": true,
}

func (Handler) ValidSortProperty(property string) bool { return sortProperties[property] }

type props struct{ b *bundle.Bundle }

func (p props) StringValue(propertyID string) string {
	switch propertyID {
	case "name":
		return pathutil.LastSegment(p.b.Target())
	case "target":
		return p.b.Target()
	case "priority":
		return p.b.Priority().String()
	default:
		return ""
	}
}

func (p props) NumberValue(propertyID string) (float64, bool) {
	switch propertyID {
	case "priority":
		return float64(p.b.Priority()), true
	case "downloaded":
		return float64(p.b.DownloadedBytes()), true
	default:
		return 0, false
	}
}

func (Handler) Properties(b *bundle.Bundle) filter.PropertyValues { return props{b} }

func (Handler) Serialize(b *bundle.Bundle, only map[string]bool) map[string]any {
	out := map[string]any{}
	want := func(k string) bool { return only == nil || only[k] }
	if want("name") {
		out["name"] = pathutil.LastSegment(b.Target())
	}
	if want("target") {
		out["target"] = b.Target()
	}
	if want("priority") {
		out["priority"] = b.Priority().String()
	}
	if want("downloaded") {
		out["downloaded"] = b.DownloadedBytes()
	}
	if want("is_file_bundle") {
		out["is_file_bundle"] = b.IsFileBundle()
	}
	if want("finished_count") {
		out["finished_count"] = b.FinishedCount()
	}
	return out
}

func (Handler) Less(a, b *bundle.Bundle, property string, ascending bool) bool {
	var less bool
	switch property {
	case "priority":
		less = a.Priority() < b.Priority()
	case "downloaded":
		less = a.DownloadedBytes() < b.DownloadedBytes()
	case "target":
		less = strings.ToLower(a.Target()) < strings.ToLower(b.Target())
	default: // "name"
		less = strings.ToLower(pathutil.LastSegment(a.Target())) < strings.ToLower(pathutil.LastSegment(b.Target()))
	}
	if ascending {
		return less
	}
	return !less && a.Token() != b.Token()
}

// New builds the daemon's "queue" view controller.
func New(session view.Session) *view.Controller[*bundle.Bundle] {
	return view.New[*bundle.Bundle]("queue", Handler{}, session, nil)
}
