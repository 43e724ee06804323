package signal

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

var ErrConnClosed = errors.New("connection closed")

// WsConn is one websocket client. Writes go through a bounded queue drained
// by the write pump; TrySend never blocks.
type WsConn struct {
	id   domain.ConnectionID
	ws   *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsConn)(nil)

func newWsConn(id domain.ConnectionID, ws *websocket.Conn, buffer int) *WsConn {
	return &WsConn{id: id, ws: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsConn) ID() domain.ConnectionID { return c.id }

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
}
