package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents one live transport session on this gateway node.
// A single user may hold several simultaneously (tabs, devices); each is
// tracked separately in the Registry.
//
// State machine: unbound -> bound on a successful register, anything ->
// closed on disconnect or grace-period timeout. closed is terminal and the
// connection id is never reused.

type connState int

const (
	stateUnbound connState = iota
	stateBound
	stateClosed
)

type Client struct {
	ConnID    string
	WS        *websocket.Conn
	Send      chan []byte // outbound queue, drained by a single writer goroutine
	CreatedAt time.Time

	mu     sync.Mutex
	userID string
	state  connState
	grace  *time.Timer

	done     chan struct{}
	doneOnce sync.Once
}

func newClient(connID string, ws *websocket.Conn, sendBuf int) *Client {
	if sendBuf <= 0 {
		sendBuf = 256
	}
	return &Client{
		ConnID:    connID,
		WS:        ws,
		Send:      make(chan []byte, sendBuf),
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateBound
}

// bind moves unbound -> bound and stops the grace timer. Returns false if
// the connection already closed (registration raced a disconnect).
func (c *Client) bind(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return false
	}
	c.userID = userID
	c.state = stateBound
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
	return true
}

// startGrace arms the fail-closed timer: a connection that never registers
// within ttl gets dropped.
func (c *Client) startGrace(ttl time.Duration, onExpire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateUnbound {
		return
	}
	c.grace = time.AfterFunc(ttl, onExpire)
}

// markClosed is idempotent; it also releases the writer goroutine.
func (c *Client) markClosed() {
	c.mu.Lock()
	c.state = stateClosed
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })
}

// enqueue offers a payload to the outbound queue without blocking.
// A full queue means a slow client; the frame is dropped, the persisted
// record remains the durable source of truth.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

const (
	writeWait  = 5 * time.Second
	pingPeriod = 25 * time.Second
)

// writePump is the only goroutine writing to the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case payload := <-c.Send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				_ = c.WS.Close()
				return
			}
		case <-ticker.C:
			if err := c.WS.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.WS.Close()
				return
			}
		case <-c.done:
			_ = c.WS.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
