package wsapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/example/bundlequeue/internal/queue/bundle"
	"github.com/example/bundlequeue/internal/queue/registry"
)

type addBundleRequest struct {
	Target       string `json:"target"`
	IsFileBundle bool   `json:"is_file_bundle"`
	Priority     string `json:"priority"`
}

type moveBundleRequest struct {
	NewTarget string `json:"new_target"`
}

func priorityFromName(name string) bundle.Priority {
	for p := bundle.PriorityPaused; p < bundle.PriorityLast; p++ {
		if p.String() == name {
			return p
		}
	}
	return bundle.PriorityNormal
}

func serializeBundle(b *bundle.Bundle) map[string]any {
	return map[string]any{
		"token":          b.Token(),
		"target":         b.Target(),
		"is_file_bundle": b.IsFileBundle(),
		"priority":       b.Priority().String(),
		"downloaded":     b.DownloadedBytes(),
		"finished_count": b.FinishedCount(),
	}
}

// RegisterBundleRoutes mounts registry operations under prefix (e.g.
// "/api/v1/bundles"), grounded in spec.md §4.1's operation list. newBundle
// builds a bundle.Bundle via the daemon's persistence backend and clock,
// keeping this package free of those concerns.
func RegisterBundleRoutes(mux *http.ServeMux, prefix string, reg *registry.Registry, newBundle func(token, target string, isFileBundle bool, priority bundle.Priority) *bundle.Bundle) {
	mux.HandleFunc("GET "+prefix, func(w http.ResponseWriter, r *http.Request) {
		bundles := reg.GetSubBundles("/")
		out := make([]map[string]any, 0, len(bundles))
		for _, b := range bundles {
			out = append(out, serializeBundle(b))
		}
		json.NewEncoder(w).Encode(map[string]any{"bundles": out})
	})

	mux.HandleFunc("POST "+prefix, func(w http.ResponseWriter, r *http.Request) {
		var req addBundleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" {
			http.Error(w, "malformed body", http.StatusBadRequest)
			return
		}
		b := newBundle(uuid.NewString(), req.Target, req.IsFileBundle, priorityFromName(req.Priority))
		reg.AddBundle(b)
		json.NewEncoder(w).Encode(serializeBundle(b))
	})

	mux.HandleFunc("GET "+prefix+"/{token}", func(w http.ResponseWriter, r *http.Request) {
		b, err := reg.FindBundle(r.PathValue("token"))
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		json.NewEncoder(w).Encode(serializeBundle(b))
	})

	mux.HandleFunc("DELETE "+prefix+"/{token}", func(w http.ResponseWriter, r *http.Request) {
		b, err := reg.FindBundle(r.PathValue("token"))
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		if err := reg.RemoveBundle(b); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST "+prefix+"/{token}/move", func(w http.ResponseWriter, r *http.Request) {
		b, err := reg.FindBundle(r.PathValue("token"))
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		var req moveBundleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewTarget == "" {
			http.Error(w, "malformed body", http.StatusBadRequest)
			return
		}
		reg.MoveBundle(b, req.NewTarget)
		w.WriteHeader(http.StatusNoContent)
	})
}

func writeRegistryError(w http.ResponseWriter, err error) {
	switch err {
	case registry.ErrNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
