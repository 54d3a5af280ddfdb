// Package transport carries coordinator events over WebSocket
// connections. The coordinator never sees a socket: it talks to
// contract.Connection sinks, this package owns the pumps and framing.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
	"whisper/domain/event"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// FrameHandler is invoked for every inbound frame of one connection,
// in arrival order.
type FrameHandler func(ctx context.Context, frame []byte)

// Connection wraps a single WebSocket connection behind the
// contract.Connection interface: a read pump feeding the frame handler
// and a buffered write pump draining Consume calls.
type Connection struct {
	id  uuid.UUID
	ws  *websocket.Conn
	log *slog.Logger

	readTimeout time.Duration
	send        chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func NewConnection(ws *websocket.Conn, sendBuffer int, readTimeout time.Duration, log *slog.Logger) *Connection {
	id := uuid.New()
	return &Connection{
		id:          id,
		ws:          ws,
		log:         log.With(slog.String("connID", id.String())),
		readTimeout: readTimeout,
		send:        make(chan []byte, sendBuffer),
		closed:      make(chan struct{}),
	}
}

func (c *Connection) ID() uuid.UUID { return c.id }

// Consume implements contract.EventSink. Delivery is best-effort: when
// the send buffer is full the event is dropped and reported, so one
// stalled client cannot block a fan-out loop.
func (c *Connection) Consume(ctx context.Context, e event.Outbound) error {
	frame, err := encodeFrame(e)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return fmt.Errorf("connection %s closed", c.id)
	case <-ctx.Done():
		return ctx.Err()
	case c.send <- frame:
		return nil
	default:
		return fmt.Errorf("send buffer full, dropping %s event", e.Name())
	}
}

// Run starts the write pump and then blocks in the read pump until the
// peer goes away or ctx is canceled. It always returns with the socket
// closed, exactly once.
func (c *Connection) Run(ctx context.Context, onFrame FrameHandler) {
	go c.writePump(ctx)
	c.readPump(ctx, onFrame)
}

func (c *Connection) readPump(ctx context.Context, onFrame FrameHandler) {
	defer c.Close(websocket.StatusNormalClosure, "")

	for {
		readCtx, cancelRead := context.WithTimeout(ctx, c.readTimeout)
		typ, reader, err := c.ws.Reader(readCtx)
		if err != nil {
			cancelRead()
			c.log.Debug("read pump finished", slog.Any("error", err))
			return
		}
		if typ != websocket.MessageText {
			cancelRead()
			continue
		}
		frame, err := io.ReadAll(reader)
		cancelRead()
		if err != nil {
			c.log.Debug("frame read failed", slog.Any("error", err))
			return
		}
		onFrame(ctx, frame)
	}
}

func (c *Connection) writePump(ctx context.Context) {
	for {
		select {
		case <-c.closed:
			return
		case <-ctx.Done():
			c.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case frame := <-c.send:
			if err := c.ws.Write(ctx, websocket.MessageText, frame); err != nil {
				c.log.Debug("write failed", slog.Any("error", err))
				c.Close(websocket.StatusAbnormalClosure, "")
				return
			}
		}
	}
}

// Close shuts the socket down; safe to call from any goroutine, any
// number of times.
func (c *Connection) Close(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close(status, reason)
	})
}
