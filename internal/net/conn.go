// Package net owns the transport side of a client: the websocket wrapper,
// the per-connection session state machine and the packet dispatcher.
package net

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	outboundBuffer = 64
	writeWait      = 10 * time.Second
)

// ErrConnClosed reports a receive on a closed connection.
var ErrConnClosed = errors.New("connection closed")

// Client is the handler-facing surface of a connection.
type Client interface {
	Send(pkt []byte)
	Close()
	RemoteAddr() string
}

// Conn wraps one accepted websocket. Packets travel as binary frames, one
// frame per packet. Outbound packets go through a buffered queue drained by
// a single writer goroutine, so Send never blocks a handler or a broadcast
// while a slow client catches up.
type Conn struct {
	ws  *websocket.Conn
	out chan []byte
	log *zap.SugaredLogger

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps an upgraded websocket and starts its writer goroutine.
func NewConn(ws *websocket.Conn, log *zap.SugaredLogger) *Conn {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Conn{
		ws:     ws,
		out:    make(chan []byte, outboundBuffer),
		log:    log,
		closed: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Send queues one packet for delivery. A closed connection or a full queue
// drops the packet; the client will resync from later state.
func (c *Conn) Send(pkt []byte) {
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.out <- pkt:
	default:
		c.log.Warnw("outbound queue full, dropping packet", "remote", c.ws.RemoteAddr())
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case pkt := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, pkt); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Receive blocks for the next binary frame. Text frames are skipped; a
// transport error closes the connection.
func (c *Conn) Receive() ([]byte, error) {
	for {
		select {
		case <-c.closed:
			return nil, ErrConnClosed
		default:
		}
		kind, payload, err := c.ws.ReadMessage()
		if err != nil {
			c.Close()
			return nil, err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		return payload, nil
	}
}

// Close tears the connection down. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

// RemoteAddr names the peer for logs.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
