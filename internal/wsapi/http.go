package wsapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/example/bundlequeue/internal/filter"
	"github.com/example/bundlequeue/internal/queue/bundle"
	"github.com/example/bundlequeue/internal/view"
)

type filterRequest struct {
	Method   string `json:"method"`
	Property string `json:"property"`
	Pattern  string `json:"pattern"`
}

// parseMethod maps the wire method name to the (string, numeric) method
// pair filter.New expects. An unrecognised numeric-only name leaves the
// string method at its zero value and vice versa; filter.Match picks
// whichever matcher applies per property, so the unused half is harmless.
func parseMethod(method string) (filter.StringMethod, filter.NumericMethod) {
	switch method {
	case "starts_with":
		return filter.StringStartsWith, filter.NumericEqual
	case "contains":
		return filter.StringContains, filter.NumericEqual
	case "regex":
		return filter.StringRegex, filter.NumericEqual
	case "ne":
		return filter.StringEquals, filter.NumericNotEqual
	case "lt":
		return filter.StringEquals, filter.NumericLess
	case "le":
		return filter.StringEquals, filter.NumericLessOrEqual
	case "gt":
		return filter.StringEquals, filter.NumericGreater
	case "ge":
		return filter.StringEquals, filter.NumericGreaterOrEqual
	default: // "equals", "eq", or unspecified
		return filter.StringEquals, filter.NumericEqual
	}
}

type settingsRequest struct {
	RangeStart    int    `json:"range_start"`
	MaxCount      int    `json:"max_count"`
	SortProperty  string `json:"sort_property"`
	SortAscending bool   `json:"sort_ascending"`
	Paused        bool   `json:"paused"`
}

// RegisterRoutes mounts the view controller contract from spec.md §4.3 for
// the "queue" view onto mux, rooted at prefix (e.g. "/api/v1/views/queue").
// seed supplies the full bundle collection at activation time.
func RegisterRoutes(mux *http.ServeMux, prefix string, queue *view.Controller[*bundle.Bundle], seed func() []*bundle.Bundle) {
	mux.HandleFunc("POST "+prefix+"/settings", func(w http.ResponseWriter, r *http.Request) {
		var req settingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed body", http.StatusBadRequest)
			return
		}
		err := queue.ApplySettings(view.Settings{
			SortProperty:  req.SortProperty,
			SortAscending: req.SortAscending,
			RangeStart:    req.RangeStart,
			MaxCount:      req.MaxCount,
			Paused:        req.Paused,
		}, seed)
		writeResult(w, err)
	})

	mux.HandleFunc("DELETE "+prefix, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, queue.Reset())
	})

	mux.HandleFunc("POST "+prefix+"/filter", func(w http.ResponseWriter, r *http.Request) {
		var req filterRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "malformed body", http.StatusBadRequest)
				return
			}
		}
		sm, nm := parseMethod(req.Method)
		id, err := queue.AddFilter(req.Property, sm, nm, req.Pattern)
		if err != nil {
			writeResult(w, err)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": id})
	})

	mux.HandleFunc("PUT "+prefix+"/filter/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid filter id", http.StatusBadRequest)
			return
		}
		var req filterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed body", http.StatusBadRequest)
			return
		}
		sm, nm := parseMethod(req.Method)
		writeResult(w, queue.UpdateFilter(id, req.Property, sm, nm, req.Pattern))
	})

	mux.HandleFunc("DELETE "+prefix+"/filter/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid filter id", http.StatusBadRequest)
			return
		}
		writeResult(w, queue.RemoveFilter(id))
	})

	mux.HandleFunc("GET "+prefix+"/items/{start}/{end}", func(w http.ResponseWriter, r *http.Request) {
		start, err1 := strconv.Atoi(r.PathValue("start"))
		end, err2 := strconv.Atoi(r.PathValue("end"))
		if err1 != nil || err2 != nil {
			http.Error(w, "invalid range", http.StatusBadRequest)
			return
		}
		items, err := queue.Items(start, end)
		if err != nil {
			writeResult(w, err)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items})
	})
}

func writeResult(w http.ResponseWriter, err error) {
	switch err {
	case nil:
		w.WriteHeader(http.StatusNoContent)
	case view.ErrInvalidArgument:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case view.ErrNotFound:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case view.ErrInactiveView:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
