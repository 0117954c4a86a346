// Package websocket streams measurements as JSON to websocket clients.
package websocket

import (
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/mlx90363/pkg/telemetry/msgs"
)

// Hub fans measurements out to connected clients.
type Hub struct {
	// Backlog is the number of measurements buffered per client.
	Backlog int

	lock    sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	ch   chan *msgs.Measurement
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{Backlog: 16, clients: make(map[*client]struct{})}
}

// Handler serves one client until it disconnects.
func (h *Hub) Handler() websocket.Handler {
	return h.serve
}

// Clients gets the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// Publish implements telemetry.Sink. Slow clients drop measurements.
func (h *Hub) Publish(m *msgs.Measurement) error {
	h.lock.RLock()
	defer h.lock.RUnlock()
	for c := range h.clients {
		select {
		case c.ch <- m:
		default:
			glog.V(2).Infof("websocket %s: dropped measurement", c.conn.RemoteAddr())
		}
	}
	return nil
}

func (h *Hub) serve(conn *websocket.Conn) {
	c := &client{conn: conn, ch: make(chan *msgs.Measurement, h.Backlog)}
	h.lock.Lock()
	h.clients[c] = struct{}{}
	h.lock.Unlock()
	defer func() {
		h.lock.Lock()
		delete(h.clients, c)
		h.lock.Unlock()
		conn.Close()
	}()

	closed := make(chan struct{})
	go func() {
		var discard []byte
		for websocket.Message.Receive(conn, &discard) == nil {
		}
		close(closed)
	}()
	for {
		select {
		case <-closed:
			return
		case m := <-c.ch:
			if err := websocket.JSON.Send(conn, m); err != nil {
				glog.V(2).Infof("websocket send: %v", err)
				return
			}
		}
	}
}
