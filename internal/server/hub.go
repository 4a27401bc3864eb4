package server

import (
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"arena-core/internal/protocol"
)

const (
	// MaxConnsPerIP bounds websocket connections per source address.
	MaxConnsPerIP = 10

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 1 << 20

	sendQueueLen = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The game wire is not a browser surface; origins are not restricted.
	CheckOrigin: func(*http.Request) bool { return true },
}

// netEventKind tags a transport callback.
type netEventKind uint8

const (
	netConnOpen netEventKind = iota
	netConnMsg
	netConnClose
)

// netEvent is one transport callback, queued for the game loop. The network
// goroutines never touch game state; the loop drains this queue at the top
// of each iteration.
type netEvent struct {
	kind netEventKind
	conn *Conn
	data []byte
	// graceful marks a close the client initiated properly.
	graceful bool
}

// Conn is one websocket connection with a buffered writer goroutine.
type Conn struct {
	id   uint64
	ws   *websocket.Conn
	ip   string
	send chan []byte

	closeOnce sync.Once
	closed    atomic.Bool
	when      time.Time
}

// ID returns the connection id.
func (c *Conn) ID() uint64 { return c.id }

// IP returns the remote address without port.
func (c *Conn) IP() string { return c.ip }

// Send encodes and queues an envelope. A full queue drops the connection:
// a client that cannot drain snapshots is unrecoverable anyway.
func (c *Conn) Send(t protocol.MsgType, ch protocol.Channel, payload any) {
	if c.closed.Load() {
		return
	}
	data, err := protocol.Encode(t, ch, payload)
	if err != nil {
		log.Printf("encode %s: %v", t, err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("conn %d: send queue full, closing", c.id)
		c.Close()
	}
}

// Close shuts the connection down once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
	})
}

// Hub accepts websocket connections and forwards their messages into the
// game loop's event queue.
type Hub struct {
	events chan netEvent
	nextID atomic.Uint64

	mu       sync.Mutex
	perIP    map[string]int
	accept   *AcceptLimiter
}

// NewHub creates a hub feeding the given event queue size.
func NewHub(queueLen int) *Hub {
	return &Hub{
		events: make(chan netEvent, queueLen),
		perIP:  make(map[string]int),
		accept: NewAcceptLimiter(),
	}
}

// Events returns the transport callback queue for the game loop.
func (h *Hub) Events() <-chan netEvent { return h.events }

// HandleWS upgrades an HTTP request into a game connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	if !h.accept.Allow(ip) {
		recordConnectionRejected("rate_limit")
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}
	h.mu.Lock()
	if h.perIP[ip] >= MaxConnsPerIP {
		h.mu.Unlock()
		recordConnectionRejected("ip_limit")
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}
	h.perIP[ip]++
	h.mu.Unlock()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.release(ip)
		log.Printf("upgrade failed from %s: %v", ip, err)
		return
	}

	conn := &Conn{
		id:   h.nextID.Add(1),
		ws:   ws,
		ip:   ip,
		send: make(chan []byte, sendQueueLen),
		when: time.Now(),
	}
	h.events <- netEvent{kind: netConnOpen, conn: conn}

	go h.writeLoop(conn)
	go h.readLoop(conn)
}

func (h *Hub) release(ip string) {
	h.mu.Lock()
	if h.perIP[ip] > 0 {
		h.perIP[ip]--
	}
	h.mu.Unlock()
}

func (h *Hub) readLoop(c *Conn) {
	defer func() {
		h.release(c.ip)
		c.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			graceful := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			h.events <- netEvent{kind: netConnClose, conn: c, graceful: graceful}
			return
		}
		h.events <- netEvent{kind: netConnMsg, conn: c, data: data}
	}
}

func (h *Hub) writeLoop(c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
