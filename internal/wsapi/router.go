// Package wsapi adapts the teacher's domain-agnostic ws.Server transport
// (token-subprotocol auth, per-connection write mutex) to the bundle-queue
// domain: a small message router (`hello`, `subscribeQueue`) that attaches
// a websocket connection as the "queue" view's session, plus the REST
// routes spec.md §4.3 specifies for view settings/filters/items
// (SPEC_FULL.md §4.8).
package wsapi

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/bundlequeue/internal/queue/bundle"
	"github.com/example/bundlequeue/internal/view"
	"github.com/example/bundlequeue/internal/ws"
)

// Router replaces the teacher's terminal-session ws.Router with bundle-queue
// routing. ws.Server itself (upgrade, auth, write-serialization) is reused
// unmodified.
type Router struct {
	mu        sync.Mutex
	queue     *view.Controller[*bundle.Bundle]
	lastConn  *websocket.Conn
	log       *zap.Logger
}

func NewRouter(queue *view.Controller[*bundle.Bundle], log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{queue: queue, log: log}
}

// Attach wires the router's handlers into s, mirroring the teacher's
// Router.Attach (internal/ws/router.go).
func (r *Router) Attach(s *ws.Server) {
	s.OnMessage = func(conn *websocket.Conn, msg map[string]any) {
		r.handle(conn, msg)
	}
	s.OnClose = func(conn *websocket.Conn) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.lastConn == conn {
			r.lastConn = nil
			r.queue.SetSession(nil)
		}
	}
}

func (r *Router) handle(conn *websocket.Conn, msg map[string]any) {
	switch msg["type"] {
	case "hello":
		_ = ws.SendJSON(conn, map[string]any{
			"type":     "welcome",
			"features": map[string]bool{"queue": true},
		})
	case "subscribeQueue":
		r.mu.Lock()
		r.lastConn = conn
		r.mu.Unlock()
		r.queue.SetSession(connSession{conn: conn})
		_ = ws.SendJSON(conn, map[string]any{"type": "subscribed", "view": "queue"})
	default:
		ws.Errorf(conn, "unknown message type %v", msg["type"])
	}
}
