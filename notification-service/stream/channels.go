package stream

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrBufferFull    = errors.New("channel buffer full")
)

const (
	heartbeatInterval = 25 * time.Second
	writeTimeout      = 10 * time.Second
	pongTimeout       = 60 * time.Second
)

// buffered is the outbound queue shared by the transport channels.
type buffered struct {
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newBuffered(size int) buffered {
	if size <= 0 {
		size = 16
	}
	return buffered{out: make(chan []byte, size), done: make(chan struct{})}
}

func (b *buffered) Send(data []byte) error {
	select {
	case <-b.done:
		return ErrChannelClosed
	default:
	}
	select {
	case b.out <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (b *buffered) Close() { b.once.Do(func() { close(b.done) }) }

// Done is closed once the channel is closed.
func (b *buffered) Done() <-chan struct{} { return b.done }

// SSEChannel streams messages as server-sent events.
type SSEChannel struct {
	buffered
}

// NewSSEChannel creates an SSE channel holding at most buffer pending messages.
func NewSSEChannel(buffer int) *SSEChannel {
	return &SSEChannel{buffered: newBuffered(buffer)}
}

// Serve writes queued messages to w until ctx is done or the channel is
// closed. Comments are sent periodically to keep proxies from timing out.
func (c *SSEChannel) Serve(ctx context.Context, w http.ResponseWriter) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("stream unsupported")
	}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return err
			}
			flusher.Flush()
		case data := <-c.out:
			if _, err := w.Write([]byte("data: ")); err != nil {
				return err
			}
			if _, err := w.Write(data); err != nil {
				return err
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

// WSChannel streams messages over a WebSocket connection.
type WSChannel struct {
	buffered
	conn *websocket.Conn
}

// NewWSChannel wraps conn with a queue of at most buffer pending messages.
func NewWSChannel(conn *websocket.Conn, buffer int) *WSChannel {
	return &WSChannel{buffered: newBuffered(buffer), conn: conn}
}

// Serve writes queued messages to the connection until ctx is done, the
// channel is closed or the peer goes away. Incoming frames are discarded.
func (c *WSChannel) Serve(ctx context.Context) error {
	defer c.conn.Close()
	go c.readLoop()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.closeFrame(websocket.CloseGoingAway)
			return nil
		case <-c.done:
			c.closeFrame(websocket.CloseNormalClosure)
			return nil
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return err
			}
		case data := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		}
	}
}

func (c *WSChannel) readLoop() {
	defer c.Close()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *WSChannel) closeFrame(code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
