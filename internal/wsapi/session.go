package wsapi

import (
	"github.com/gorilla/websocket"

	"github.com/example/bundlequeue/internal/ws"
)

// connSession adapts a websocket connection to view.Session. It satisfies
// the session transport spec.md §6 describes: JSON payloads tagged with
// the event name under "type", matching the shape the rest of this
// package's messages use (see router.go's "welcome"/"subscribed" replies).
type connSession struct {
	conn *websocket.Conn
}

func (s connSession) Send(event string, payload map[string]any) error {
	msg := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		msg[k] = v
	}
	msg["type"] = event
	return ws.SendJSON(s.conn, msg)
}
