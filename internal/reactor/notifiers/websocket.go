package notifiers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/daniacca/graphitecore/internal/reactor"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsBroadcastSize = 256
)

// ErrNotifierClosed is returned by Notify after Close.
var ErrNotifierClosed = errors.New("notifier closed")

// wsClient is one subscribed connection. An empty reactor means every reactor.
type wsClient struct {
	conn    *websocket.Conn
	reactor reactor.ReactorID
}

// WebSocketNotifier streams reactor events to connected WebSocket clients.
// Clients may subscribe to one reactor with the ?reactor= query parameter.
type WebSocketNotifier struct {
	id         string
	mu         sync.RWMutex
	clients    map[*websocket.Conn]*wsClient
	upgrader   websocket.Upgrader
	broadcast  chan reactor.NotificationEvent
	register   chan *wsClient
	unregister chan *websocket.Conn
	done       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// NewWebSocketNotifier creates the notifier and starts its broadcaster.
func NewWebSocketNotifier(id string) *WebSocketNotifier {
	n := &WebSocketNotifier{
		id:         id,
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan reactor.NotificationEvent, wsBroadcastSize),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	n.wg.Add(1)
	go n.run()
	return n
}

func (n *WebSocketNotifier) ID() string   { return n.id }
func (n *WebSocketNotifier) Type() string { return "websocket" }

// SetCheckOrigin overrides the upgrader's origin check.
func (n *WebSocketNotifier) SetCheckOrigin(fn func(*http.Request) bool) {
	n.upgrader.CheckOrigin = fn
}

// ClientCount returns the number of connected clients.
func (n *WebSocketNotifier) ClientCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.clients)
}

// ServeHTTP upgrades the request and keeps the client subscribed until it
// disconnects or the notifier closes.
func (n *WebSocketNotifier) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &wsClient{conn: conn, reactor: reactor.ReactorID(r.URL.Query().Get("reactor"))}
	if !n.registerClient(client) {
		conn.Close()
		return
	}
	defer n.unregisterClient(conn)

	// clients only listen; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// registerClient adds a client. It reports false once the notifier is closed.
func (n *WebSocketNotifier) registerClient(c *wsClient) bool {
	select {
	case n.register <- c:
		return true
	case <-n.done:
		return false
	}
}

// unregisterClient drops and closes a client connection.
func (n *WebSocketNotifier) unregisterClient(conn *websocket.Conn) {
	select {
	case n.unregister <- conn:
	case <-n.done:
	}
}

// Notify queues event for every interested client.
func (n *WebSocketNotifier) Notify(ctx context.Context, event reactor.NotificationEvent) error {
	select {
	case <-n.done:
		return ErrNotifierClosed
	default:
	}
	select {
	case n.broadcast <- event:
		return nil
	case <-n.done:
		return ErrNotifierClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
		return errors.New("websocket broadcast queue full")
	}
}

func (n *WebSocketNotifier) run() {
	defer n.wg.Done()
	for {
		select {
		case <-n.done:
			return

		case c := <-n.register:
			n.mu.Lock()
			n.clients[c.conn] = c
			n.mu.Unlock()

		case conn := <-n.unregister:
			n.mu.Lock()
			if _, ok := n.clients[conn]; ok {
				delete(n.clients, conn)
				conn.Close()
			}
			n.mu.Unlock()

		case event := <-n.broadcast:
			n.send(event)
		}
	}
}

func (n *WebSocketNotifier) send(event reactor.NotificationEvent) {
	data, err := event.JSON()
	if err != nil {
		return
	}

	n.mu.RLock()
	targets := make([]*wsClient, 0, len(n.clients))
	for _, c := range n.clients {
		if c.reactor == "" || c.reactor == event.ReactorID {
			targets = append(targets, c)
		}
	}
	n.mu.RUnlock()

	var failed []*websocket.Conn
	for _, c := range targets {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			failed = append(failed, c.conn)
			c.conn.Close()
		}
	}
	if len(failed) > 0 {
		n.mu.Lock()
		for _, conn := range failed {
			delete(n.clients, conn)
		}
		n.mu.Unlock()
	}
}

// Close disconnects every client and stops the broadcaster. It is safe to
// call more than once.
func (n *WebSocketNotifier) Close() error {
	n.closeOnce.Do(func() {
		close(n.done)
		n.wg.Wait()

		n.mu.Lock()
		for conn := range n.clients {
			conn.Close()
			delete(n.clients, conn)
		}
		n.mu.Unlock()
	})
	return nil
}
