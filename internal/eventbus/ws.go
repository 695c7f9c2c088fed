package eventbus

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// writeDeadline bounds how long a single websocket write may take
// before the bridge gives up on a slow subscriber's socket.
const writeDeadline = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades r to a websocket connection, subscribes it to bus,
// and streams every published Message as a JSON text frame until the
// connection errors or closes. It blocks until the bridge exits, so
// callers should invoke it in its own goroutine per connection.
func ServeWS(bus *Bus, w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	for msg := range ch {
		payload, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return err
		}
	}
	return nil
}
