package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn wraps a websocket connection behind the hub.Conn interface.
// gorilla/websocket allows a single concurrent writer, so all sends go
// through a mutex.
type wsConn struct {
	writeMu sync.Mutex
	sock    *websocket.Conn
}

func newWSConn(sock *websocket.Conn) *wsConn {
	return &wsConn{sock: sock}
}

func (c *wsConn) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.sock.Close()
}
