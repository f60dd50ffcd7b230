package wsapi

import (
	"encoding/json"
	"net/http"

	"github.com/example/bundlequeue/internal/clock"
	"github.com/example/bundlequeue/internal/queue/scheduler"
	"github.com/example/bundlequeue/internal/telemetry"
)

// RegisterSchedulerRoutes mounts the one scheduler operation the CLI needs
// to reach over HTTP (SPEC_FULL.md §4.9 "queue peek"): force a
// PickNextSearch call and report its outcome.
func RegisterSchedulerRoutes(mux *http.ServeMux, prefix string, sched *scheduler.Scheduler, clk clock.Clock, metrics *telemetry.Metrics) {
	mux.HandleFunc("POST "+prefix+"/peek", func(w http.ResponseWriter, r *http.Request) {
		b, ok := sched.PickNextSearch(clk.NowMs(), true)
		if !ok {
			metrics.RecordPick("none")
			json.NewEncoder(w).Encode(map[string]any{"picked": false})
			return
		}
		metrics.RecordPick("auto")
		json.NewEncoder(w).Encode(map[string]any{
			"picked": true,
			"token":  b.Token(),
			"target": b.Target(),
		})
	})
}
