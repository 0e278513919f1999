package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	// a message of MaxMessageLength characters sent as escaped surrogate
	// pairs takes 12 bytes per character, plus the JSON wrapper
	maxFrameSize   = MaxMessageLength*12 + 1024
	sendBufferSize = 128
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Connection adapts a websocket to Transport. Outbound frames go through a
// buffered queue drained by a single writer goroutine.
type Connection struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	once   sync.Once
	quit   chan struct{}
	done   chan struct{}
	code   int
	reason string
}

var _ Transport = (*Connection)(nil)

// NewConnection takes ownership of ws and starts its writer
func NewConnection(ws *websocket.Conn) *Connection {
	c := &Connection{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.writeLoop()
	return c
}

func (c *Connection) ID() string {
	return c.id
}

// Deliver queues payload without blocking. A full queue means the peer is
// not keeping up, so the connection is dropped.
func (c *Connection) Deliver(payload []byte) error {
	select {
	case <-c.quit:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		go c.Close(websocket.CloseGoingAway, "send buffer full")
		return ErrSendBufferFull
	}
}

// Receive blocks for the next text or binary frame from the peer
func (c *Connection) Receive() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close flushes queued frames, sends a close frame with code and reason and
// releases the socket. Only the first call has any effect.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		c.code, c.reason = code, reason
		close(c.quit)
	})
	<-c.done
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case <-c.quit:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.code, c.reason),
				time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.once.Do(func() { close(c.quit) })
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.once.Do(func() { close(c.quit) })
				return
			}
		}
	}
}

func (c *Connection) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
